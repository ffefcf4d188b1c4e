// Package cryptox implements the key and cipher primitives of the engine:
// argon2id key derivation and AES-256-GCM authenticated encryption.
//
// An authentication failure during decryption is reported as
// common.ErrDecryptionFailed, distinct from structural errors (wrong key
// length, truncated input), so callers can substitute placeholder content
// instead of treating the row as corrupt.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/nvoitko/inkwell/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// SaltSize is the derivation salt length in bytes.
	SaltSize = 16
)

// DeriveKey stretches a secret and salt into a 256-bit session key using
// argon2id.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier returns a value safe to persist for checking that a derived
// key is the right one, without persisting the key itself.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// GenerateRandBytes returns n cryptographically random bytes. It panics only
// if the OS entropy source is unusable, which is not a recoverable state.
func GenerateRandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("cryptox: entropy source failed: %v", err))
	}
	return b
}

// Encrypt seals plaintext with AES-256-GCM under key and iv.
//
// The key must be KeySize bytes and the iv IVSize bytes. The same iv must
// never be reused with the same key; callers generate a fresh one per
// envelope with GenerateRandBytes(IVSize).
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("cryptox: bad iv length %d", len(iv))
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. A wrong key, wrong salt, or
// tampered ciphertext yields common.ErrDecryptionFailed.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("cryptox: bad iv length %d", len(iv))
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new gcm: %w", err)
	}
	return aead, nil
}
