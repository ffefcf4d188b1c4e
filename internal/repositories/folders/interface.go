// Package folders persists the cached folder tree.
package folders

import (
	"context"

	"github.com/nvoitko/inkwell/internal/models"
)

// Repository is the folders table contract.
type Repository interface {
	// GetAll lists cached folders ordered by sort_order, then name.
	GetAll(ctx context.Context) ([]*models.Folder, error)

	// GetByID returns one folder or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Folder, error)

	// Upsert writes a single folder. Re-parenting that would introduce a
	// cycle is rejected.
	Upsert(ctx context.Context, f *models.Folder) error

	// StoreCached replaces all synced folders with the given set.
	StoreCached(ctx context.Context, fs []*models.Folder) error

	// Delete removes one folder row.
	Delete(ctx context.Context, id string) error

	// Clear removes every folder row.
	Clear(ctx context.Context) error
}
