package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/dbx"
	"github.com/nvoitko/inkwell/internal/models"
)

const folderColumns = `id, name, color, parent_id, user_id, sort_order, created_at, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders ORDER BY sort_order, name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folders: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, f *models.Folder) error {
	if f.ParentID != "" {
		all, err := r.GetAll(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]*models.Folder, len(all))
		for _, x := range all {
			byID[x.ID] = x
		}
		if models.WouldCycle(byID, f.ID, f.ParentID) {
			return fmt.Errorf("folder %s: parent %s would form a cycle", f.ID, f.ParentID)
		}
	}

	query := `INSERT INTO folders (` + folderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			parent_id = excluded.parent_id,
			user_id = excluded.user_id,
			sort_order = excluded.sort_order,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.Name, f.Color, f.ParentID, f.UserID, f.SortOrder,
		f.CreatedAt.UnixMilli(), f.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert folder: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) StoreCached(ctx context.Context, fs []*models.Folder) error {
	for _, f := range fs {
		if err := r.Upsert(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM folders`); err != nil {
		return fmt.Errorf("failed to clear folders: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	var f models.Folder
	var createdAt, updatedAt int64
	err := row.Scan(&f.ID, &f.Name, &f.Color, &f.ParentID, &f.UserID, &f.SortOrder, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = time.UnixMilli(createdAt)
	f.UpdatedAt = time.UnixMilli(updatedAt)
	return &f, nil
}
