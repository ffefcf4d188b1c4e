// Package models defines the entities persisted by the Inkwell sync engine:
// notes, folders, cache metadata rows, and sync queue items.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nvoitko/inkwell/internal/common"
)

// EncryptedSentinel is the reserved value stored in plaintext columns to
// signal "ciphertext present, not yet decrypted". It is never valid user
// content: downstream layers detect encrypted notes by comparing against it.
const EncryptedSentinel = "\x00[encrypted]\x00"

// DecryptFailedPlaceholder is shown in place of a note body when the
// ciphertext did not authenticate under the user's key.
const DecryptFailedPlaceholder = "Unable to decrypt"

// Note is a single note as held by the local store.
//
// A note is either fully plaintext (Title/Content populated) or carries only
// ciphertext (EncryptedTitle/EncryptedContent set, plaintext columns equal to
// EncryptedSentinel), never a mix of the two.
type Note struct {
	ID               string
	Title            string
	Content          string
	EncryptedTitle   string // base64 ciphertext envelope
	EncryptedContent string // base64 ciphertext envelope
	IV               string // base64
	Salt             string // base64
	FolderID         string // empty = root
	UserID           string

	Starred  bool
	Archived bool
	Deleted  bool
	Hidden   bool

	CreatedAt time.Time
	UpdatedAt time.Time

	AttachmentCount int

	IsSynced bool
	IsDirty  bool
	SyncedAt time.Time
}

// HasCiphertext reports whether the note carries an encrypted envelope.
func (n *Note) HasCiphertext() bool {
	return n.EncryptedTitle != "" || n.EncryptedContent != ""
}

// NewTempID returns a fresh client-generated temporary identifier.
func NewTempID() string {
	return common.TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated on the client and has not yet
// been replaced by a server-assigned identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, common.TempIDPrefix)
}

// NoteFilters narrows a cached-notes query. Nil fields are ignored.
type NoteFilters struct {
	FolderID *string
	Starred  *bool
	Archived *bool
	Deleted  *bool
}

// Match reports whether n satisfies every set filter.
func (f NoteFilters) Match(n *Note) bool {
	if f.FolderID != nil && n.FolderID != *f.FolderID {
		return false
	}
	if f.Starred != nil && n.Starred != *f.Starred {
		return false
	}
	if f.Archived != nil && n.Archived != *f.Archived {
		return false
	}
	if f.Deleted != nil && n.Deleted != *f.Deleted {
		return false
	}
	return true
}
