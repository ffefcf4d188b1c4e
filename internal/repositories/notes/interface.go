// Package notes persists cached notes. Row-to-entity mapping enforces the
// encrypted-marker contract, and the storeDecrypted flag is the
// confidentiality boundary: plaintext never reaches disk unless the caller
// passed true.
package notes

import (
	"context"

	"github.com/nvoitko/inkwell/internal/models"
)

// Repository is the notes table contract.
type Repository interface {
	// GetCached lists cached notes matching filters, newest update first.
	// Corrupt synced rows are self-healed (deleted) and an empty result is
	// returned instead of a parse error.
	GetCached(ctx context.Context, filters models.NoteFilters) ([]*models.Note, error)

	// GetByID returns one note or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Note, error)

	// Upsert writes a single note.
	Upsert(ctx context.Context, n *models.Note) error

	// StoreCached upserts a batch in fixed-size chunks. When storeDecrypted
	// is false, plaintext columns are cleared even if the input carried
	// plaintext. Per-row failures are logged and skipped.
	StoreCached(ctx context.Context, notes []*models.Note, storeDecrypted bool) error

	// Clear removes cached rows. With clearAll false, rows with pending
	// local edits (is_synced = 0) are preserved.
	Clear(ctx context.Context, clearAll bool) error

	// ClearPlaintext wipes plaintext columns of every note that carries
	// ciphertext, for the "user disabled decrypted caching" path.
	ClearPlaintext(ctx context.Context) error

	// Delete removes one row by id.
	Delete(ctx context.Context, id string) error

	// ReassignFolder rewrites folder references from oldID to newID.
	ReassignFolder(ctx context.Context, oldID, newID string) error

	// Count returns the number of cached notes matching filters.
	Count(ctx context.Context, filters models.NoteFilters) (int, error)
}
