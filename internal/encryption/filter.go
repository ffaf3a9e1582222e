// Package encryption implements a pure byte→bytes pre-write/post-read
// transform installed only on the
// Secure store, so the BlobStore stays unaware of encryption.
package encryption

import (
	"context"

	"akavache/crypt"
	akaerrors "akavache/errors"
)

// Filter applies a Protector's protect/unprotect around the BlobStore.
type Filter struct {
	protector crypt.Protector
}

// New creates a Filter backed by protector.
func New(protector crypt.Protector) *Filter {
	return &Filter{protector: protector}
}

// PreWrite transforms plaintext into the bytes that get written to disk.
// Empty input short-circuits to empty output, so platforms that reject
// protecting zero bytes never see the call.
func (f *Filter) PreWrite(ctx context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return []byte{}, nil
	}
	ciphertext, err := f.protector.Protect(ctx, plaintext, crypt.CurrentUser)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "protect failed", err)
	}
	return ciphertext, nil
}

// PostRead transforms bytes read from disk back into plaintext. Empty
// input short-circuits to empty output, mirroring PreWrite.
func (f *Filter) PostRead(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return []byte{}, nil
	}
	plaintext, err := f.protector.Unprotect(ctx, ciphertext)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "unprotect failed", err)
	}
	return plaintext, nil
}
