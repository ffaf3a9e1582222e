// Package crypt defines the data-protection collaborator:
// protect/unprotect a byte array under a user-scoped key. Only the
// Secure store wires a Protector in.
package crypt

import "context"

// Scope selects the key scope a Protector operates under. Only
// current-user scope is named today; the type exists so a future machine-scoped
// Protector can be added without changing the interface.
type Scope int

const (
	// CurrentUser protects data such that only the current OS user
	// account can unprotect it.
	CurrentUser Scope = iota
)

// Protector is the data-protection collaborator. Protect/Unprotect must
// be safe for concurrent use.
type Protector interface {
	Protect(ctx context.Context, plaintext []byte, scope Scope) ([]byte, error)
	Unprotect(ctx context.Context, ciphertext []byte) ([]byte, error)
}
