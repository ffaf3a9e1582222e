package crypt

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/99designs/keyring"
	"golang.org/x/crypto/chacha20poly1305"

	akaerrors "akavache/errors"
)

const (
	keyringServiceName = "akavache"
	keyringItemKey     = "secure-store-aead-key"
)

// KeyringProtector is the default Protector: it stores a per-application
// AEAD key in the OS keychain/keyring via github.com/99designs/keyring
// (generating one on first use) and seals/opens payloads with
// ChaCha20-Poly1305 from golang.org/x/crypto.
type KeyringProtector struct {
	ring keyring.Keyring
	aead func(key []byte) (cipherAEAD, error)
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewKeyringProtector opens (or creates) the OS keyring collection named
// "akavache-<applicationName>" and returns a Protector backed by it.
func NewKeyringProtector(applicationName string) (*KeyringProtector, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringServiceName + "-" + applicationName,
	})
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to open keyring", err)
	}
	return &KeyringProtector{
		ring: ring,
		aead: func(key []byte) (cipherAEAD, error) { return chacha20poly1305.New(key) },
	}, nil
}

func (p *KeyringProtector) key(ctx context.Context) ([]byte, error) {
	item, err := p.ring.Get(keyringItemKey)
	if err == nil && len(item.Data) == chacha20poly1305.KeySize {
		return item.Data, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to generate key", err)
	}
	if err := p.ring.Set(keyring.Item{Key: keyringItemKey, Data: key}); err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to persist key", err)
	}
	return key, nil
}

// Protect seals plaintext with a fresh random nonce, prefixing the nonce
// to the returned ciphertext so Unprotect can recover it.
func (p *KeyringProtector) Protect(ctx context.Context, plaintext []byte, _ Scope) ([]byte, error) {
	key, err := p.key(ctx)
	if err != nil {
		return nil, err
	}
	aead, err := p.aead(key)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to construct AEAD", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to generate nonce", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Unprotect recovers plaintext from a value previously returned by
// Protect.
func (p *KeyringProtector) Unprotect(ctx context.Context, ciphertext []byte) ([]byte, error) {
	key, err := p.key(ctx)
	if err != nil {
		return nil, err
	}
	aead, err := p.aead(key)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to construct AEAD", err)
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, akaerrors.New(akaerrors.EncryptionFailure, "", "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.EncryptionFailure, "", "failed to open ciphertext", err)
	}
	return plaintext, nil
}
