// Package encryption translates plaintext note fields to and from ciphertext
// envelopes and defines the encrypted-marker contract: a note whose title and
// content equal the reserved sentinel while ciphertext fields are present is
// "encrypted, not yet decrypted".
package encryption

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"

	"github.com/nvoitko/inkwell/internal/cryptox"
	"github.com/nvoitko/inkwell/internal/keystore"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
)

// decryptBatchSize bounds how many notes are processed between cooperative
// yields so a bulk decrypt never monopolizes the scheduler.
const decryptBatchSize = 3

// Envelope is the transport form of an encrypted note body.
type Envelope struct {
	Title            string // sentinel
	Content          string // sentinel
	EncryptedTitle   string // base64
	EncryptedContent string // base64
	IV               string // base64
	Salt             string // base64
}

// Adapter performs note-level encryption and decryption on top of the key
// source.
type Adapter struct {
	keys *keystore.KeySource
	log  logging.Logger
}

func NewAdapter(keys *keystore.KeySource, log logging.Logger) *Adapter {
	return &Adapter{keys: keys, log: log}
}

// IsEncrypted reports whether the note carries an undecrypted envelope.
func IsEncrypted(n *models.Note) bool {
	return n.HasCiphertext() &&
		n.Title == models.EncryptedSentinel &&
		n.Content == models.EncryptedSentinel
}

// EncryptForTransport seals title and content for userID under a fresh salt
// and iv. The returned envelope carries the sentinel in its plaintext fields.
//
// Title and content are sealed under distinct nonces derived from the stored
// iv, so the single persisted iv never repeats under one key.
func (a *Adapter) EncryptForTransport(ctx context.Context, userID, title, content string) (*Envelope, error) {
	salt := cryptox.GenerateRandBytes(cryptox.SaltSize)
	iv := cryptox.GenerateRandBytes(cryptox.IVSize)

	key, err := a.keys.Key(ctx, userID, salt)
	if err != nil {
		return nil, fmt.Errorf("encryption: resolve key: %w", err)
	}

	ctTitle, err := cryptox.Encrypt([]byte(title), key, titleIV(iv))
	if err != nil {
		return nil, fmt.Errorf("encryption: seal title: %w", err)
	}
	ctContent, err := cryptox.Encrypt([]byte(content), key, iv)
	if err != nil {
		return nil, fmt.Errorf("encryption: seal content: %w", err)
	}

	return &Envelope{
		Title:            models.EncryptedSentinel,
		Content:          models.EncryptedSentinel,
		EncryptedTitle:   base64.StdEncoding.EncodeToString(ctTitle),
		EncryptedContent: base64.StdEncoding.EncodeToString(ctContent),
		IV:               base64.StdEncoding.EncodeToString(iv),
		Salt:             base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt returns a copy of n with plaintext populated. A note without an
// envelope is returned unchanged. Cipher failures never propagate: the copy
// carries the fixed "could not decrypt" placeholder instead.
func (a *Adapter) Decrypt(ctx context.Context, n *models.Note) *models.Note {
	if !IsEncrypted(n) {
		return n
	}

	out := *n
	title, content, err := a.open(ctx, n)
	if err != nil {
		a.log.Warn(ctx, "note decryption failed", "note_id", n.ID, "err", err)
		out.Title = models.DecryptFailedPlaceholder
		out.Content = models.DecryptFailedPlaceholder
		return &out
	}
	out.Title = title
	out.Content = content
	return &out
}

// DecryptMany decrypts notes sequentially, yielding to the scheduler after
// every small batch. Output order matches input order.
func (a *Adapter) DecryptMany(ctx context.Context, notes []*models.Note) []*models.Note {
	out := make([]*models.Note, len(notes))
	for i, n := range notes {
		out[i] = a.Decrypt(ctx, n)
		if (i+1)%decryptBatchSize == 0 {
			runtime.Gosched()
		}
	}
	return out
}

func (a *Adapter) open(ctx context.Context, n *models.Note) (title, content string, err error) {
	salt, err := base64.StdEncoding.DecodeString(n.Salt)
	if err != nil {
		return "", "", fmt.Errorf("decode salt: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(n.IV)
	if err != nil {
		return "", "", fmt.Errorf("decode iv: %w", err)
	}
	ctTitle, err := base64.StdEncoding.DecodeString(n.EncryptedTitle)
	if err != nil {
		return "", "", fmt.Errorf("decode title: %w", err)
	}
	ctContent, err := base64.StdEncoding.DecodeString(n.EncryptedContent)
	if err != nil {
		return "", "", fmt.Errorf("decode content: %w", err)
	}

	key, err := a.keys.Key(ctx, n.UserID, salt)
	if err != nil {
		return "", "", fmt.Errorf("resolve key: %w", err)
	}

	ptTitle, err := cryptox.Decrypt(ctTitle, key, titleIV(iv))
	if err != nil {
		return "", "", err
	}
	ptContent, err := cryptox.Decrypt(ctContent, key, iv)
	if err != nil {
		return "", "", err
	}
	return string(ptTitle), string(ptContent), nil
}

// titleIV derives the title nonce from the stored content nonce.
func titleIV(iv []byte) []byte {
	t := make([]byte, len(iv))
	copy(t, iv)
	if len(t) > 0 {
		t[0] ^= 0x01
	}
	return t
}
