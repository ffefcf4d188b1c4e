// Package common defines shared constants and sentinel errors used across
// the Inkwell sync engine. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound       = errors.New("not found")
	ErrStorageCorrupt = errors.New("storage corrupt")

	// Network-level conditions. ErrNetworkUnavailable is expected, not
	// exceptional: it routes callers onto the offline code paths.
	// ErrNotModified is the valid "no update" answer to a conditional GET.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrNotModified        = errors.New("not modified")

	// Crypto errors. ErrDecryptionFailed means the ciphertext did not
	// authenticate under the supplied key; retrying cannot fix it.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Auth errors.
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTokenExpired  = errors.New("token expired")
	ErrWrongPassword = errors.New("wrong master password")
)
