package keystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/cryptox"
)

// KeySource resolves the symmetric session key for a user in one of two
// modes:
//
//   - master-password mode: a previously unlocked key sits in the store
//     under masterKeyName(userID) and is used verbatim (the salt is ignored);
//   - auto-secret mode: a per-user random secret is read from (or created
//     in) the store and stretched with the supplied salt through argon2id.
type KeySource struct {
	store Store
}

func NewKeySource(store Store) *KeySource {
	return &KeySource{store: store}
}

func masterKeyName(userID string) string  { return "master_key:" + userID }
func masterSaltName(userID string) string { return "master_salt:" + userID }
func verifierName(userID string) string   { return "master_verifier:" + userID }
func autoSecretName(userID string) string { return "auto_secret:" + userID }

// Key returns the session key for userID and salt.
//
// If a master key is unlocked it wins; otherwise the auto secret is used,
// created on first reference.
func (s *KeySource) Key(ctx context.Context, userID string, salt []byte) ([]byte, error) {
	mk, err := s.store.Get(ctx, masterKeyName(userID))
	if err == nil {
		return mk, nil
	}
	// Only a confirmed absence falls through to auto-secret mode. Deriving
	// a different key on a transient store failure would make every cached
	// note undecryptable.
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("keystore: read master key: %w", err)
	}

	secret, err := s.store.Get(ctx, autoSecretName(userID))
	if errors.Is(err, common.ErrNotFound) {
		secret = cryptox.GenerateRandBytes(cryptox.KeySize)
		if err := s.store.Set(ctx, autoSecretName(userID), secret); err != nil {
			return nil, fmt.Errorf("keystore: store auto secret: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("keystore: read auto secret: %w", err)
	}
	return cryptox.DeriveKey(secret, salt), nil
}

// UnlockWithPassword derives the master key for userID from password and
// switches the source into master-password mode until LockMaster is called.
//
// The derivation salt is created once per user and reused on every unlock,
// so the key stays stable across sessions and old ciphertext remains
// readable. A persisted verifier rejects a wrong password up front with
// common.ErrWrongPassword instead of surfacing later as decrypt failures.
func (s *KeySource) UnlockWithPassword(ctx context.Context, userID string, password []byte) error {
	salt, err := s.store.Get(ctx, masterSaltName(userID))
	if errors.Is(err, common.ErrNotFound) {
		salt = cryptox.GenerateRandBytes(cryptox.SaltSize)
		if err := s.store.Set(ctx, masterSaltName(userID), salt); err != nil {
			return fmt.Errorf("keystore: store master salt: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("keystore: read master salt: %w", err)
	}

	key := cryptox.DeriveKey(password, salt)
	verifier := cryptox.MakeVerifier(key)

	stored, err := s.store.Get(ctx, verifierName(userID))
	switch {
	case errors.Is(err, common.ErrNotFound):
		if err := s.store.Set(ctx, verifierName(userID), verifier); err != nil {
			return fmt.Errorf("keystore: store verifier: %w", err)
		}
	case err != nil:
		return fmt.Errorf("keystore: read verifier: %w", err)
	case !bytes.Equal(stored, verifier):
		return common.ErrWrongPassword
	}

	return s.store.Set(ctx, masterKeyName(userID), key)
}

// UnlockMaster stores an already-derived master key for userID, switching the
// source into master-password mode until LockMaster is called.
func (s *KeySource) UnlockMaster(ctx context.Context, userID string, key []byte) error {
	return s.store.Set(ctx, masterKeyName(userID), key)
}

// LockMaster drops the unlocked master key.
func (s *KeySource) LockMaster(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, masterKeyName(userID))
}
