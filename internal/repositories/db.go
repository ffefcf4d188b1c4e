// Package repositories wires the local SQLite database: it runs migrations
// and hands out the typed table repositories over a shared handle.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/migrations"
	"github.com/nvoitko/inkwell/internal/repositories/cachemeta"
	"github.com/nvoitko/inkwell/internal/repositories/folders"
	"github.com/nvoitko/inkwell/internal/repositories/notes"
	"github.com/nvoitko/inkwell/internal/repositories/syncqueue"
)

// Repositories bundles the four engine-owned tables.
type Repositories struct {
	Notes     notes.Repository
	Folders   folders.Repository
	CacheMeta cachemeta.Tracker
	Queue     syncqueue.Repository
	DB        *sql.DB
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite database at dsn, migrates it, and returns the
// repository set. Use "file:x?mode=memory&cache=shared" for tests.
func InitDatabase(ctx context.Context, dsn string, log logging.Logger) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		Notes:     notes.NewSQLiteRepository(db, log),
		Folders:   folders.NewSQLiteRepository(db),
		CacheMeta: cachemeta.NewSQLiteTracker(db),
		Queue:     syncqueue.NewSQLiteRepository(db),
		DB:        db,
	}, nil
}
