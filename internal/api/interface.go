package api

import (
	"context"

	"github.com/nvoitko/inkwell/internal/models"
)

// Client is the remote notes/folders API surface the engine depends on.
//
// List calls taking a Conditional return common.ErrNotModified when the
// server answers 304; any transport failure comes back as
// common.ErrNetworkUnavailable so callers can fall onto offline paths.
type Client interface {
	// ListNotes fetches a page of notes. A zero Conditional fetches
	// unconditionally.
	ListNotes(ctx context.Context, opts ListOptions, cond Conditional) (*NotesPage, error)

	// CountNotes returns the server-side count matching filters.
	CountNotes(ctx context.Context, filters models.NoteFilters) (int, error)

	CreateNote(ctx context.Context, n *models.Note) (*models.Note, error)
	UpdateNote(ctx context.Context, n *models.Note) (*models.Note, error)
	DeleteNote(ctx context.Context, id string) error

	ListFolders(ctx context.Context, cond Conditional) (*FoldersPage, error)
	CreateFolder(ctx context.Context, f *models.Folder) (*models.Folder, error)
	UpdateFolder(ctx context.Context, f *models.Folder) (*models.Folder, error)
	DeleteFolder(ctx context.Context, id string) error

	// Ping checks server liveness.
	Ping(ctx context.Context) error
}
