package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/dbx"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
)

// upsertChunkSize bounds how many rows one batch pass writes before the next
// checkpoint, so a single bad row cannot abort the whole batch.
const upsertChunkSize = 50

const noteColumns = `id, title, content, encrypted_title, encrypted_content, iv, salt,
	folder_id, user_id, starred, archived, deleted, hidden,
	created_at, updated_at, attachment_count, is_synced, is_dirty, synced_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	log logging.Logger
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX, log logging.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, log: log}
}

func (r *SQLiteRepository) GetCached(ctx context.Context, filters models.NoteFilters) ([]*models.Note, error) {
	where, args := filterClause(filters)
	query := `SELECT ` + noteColumns + ` FROM notes` + where + ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	var corrupt []string
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			r.log.Warn(ctx, "skipping unreadable note row", "err", err)
			continue
		}
		if n.CreatedAt.IsZero() || n.UpdatedAt.IsZero() {
			if n.IsSynced {
				corrupt = append(corrupt, n.ID)
			}
			continue
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	if len(corrupt) > 0 {
		// Self-heal: drop the synced rows with unusable timestamps; the next
		// revalidation restores them from the server.
		r.log.Error(ctx, "corrupt note rows detected, self-healing", "count", len(corrupt))
		for _, id := range corrupt {
			if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND is_synced = 1`, id); err != nil {
				r.log.Error(ctx, "self-heal delete failed", "note_id", id, "err", err)
			}
		}
		return []*models.Note{}, nil
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, n *models.Note) error {
	return r.upsertRow(ctx, n, true)
}

func (r *SQLiteRepository) StoreCached(ctx context.Context, batch []*models.Note, storeDecrypted bool) error {
	for start := 0; start < len(batch); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(batch))
		for _, n := range batch[start:end] {
			if err := r.upsertRow(ctx, n, storeDecrypted); err != nil {
				r.log.Warn(ctx, "skipping failed note upsert", "note_id", n.ID, "err", err)
			}
		}
	}
	return nil
}

// upsertRow writes one note. With storeDecrypted false, plaintext columns are
// forcibly cleared: confidentiality is enforced here, not trusted to callers.
func (r *SQLiteRepository) upsertRow(ctx context.Context, n *models.Note, storeDecrypted bool) error {
	title, content := n.Title, n.Content
	if !storeDecrypted && n.HasCiphertext() {
		title, content = "", ""
	}
	if title == models.EncryptedSentinel {
		title = ""
	}
	if content == models.EncryptedSentinel {
		content = ""
	}

	query := `INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			encrypted_title = excluded.encrypted_title,
			encrypted_content = excluded.encrypted_content,
			iv = excluded.iv,
			salt = excluded.salt,
			folder_id = excluded.folder_id,
			user_id = excluded.user_id,
			starred = excluded.starred,
			archived = excluded.archived,
			deleted = excluded.deleted,
			hidden = excluded.hidden,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			attachment_count = excluded.attachment_count,
			is_synced = excluded.is_synced,
			is_dirty = excluded.is_dirty,
			synced_at = excluded.synced_at
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, title, content, n.EncryptedTitle, n.EncryptedContent, n.IV, n.Salt,
		n.FolderID, n.UserID, boolInt(n.Starred), boolInt(n.Archived), boolInt(n.Deleted), boolInt(n.Hidden),
		n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(), n.AttachmentCount,
		boolInt(n.IsSynced), boolInt(n.IsDirty), timeMilli(n.SyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, clearAll bool) error {
	query := `DELETE FROM notes WHERE is_synced = 1`
	if clearAll {
		query = `DELETE FROM notes`
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear notes: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClearPlaintext(ctx context.Context) error {
	query := `UPDATE notes SET title = '', content = ''
		WHERE encrypted_title <> '' OR encrypted_content <> ''`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear plaintext: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReassignFolder(ctx context.Context, oldID, newID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notes SET folder_id = ? WHERE folder_id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to reassign folder: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context, filters models.NoteFilters) (int, error) {
	where, args := filterClause(filters)
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return n, nil
}

func filterClause(f models.NoteFilters) (string, []any) {
	var conds []string
	var args []any
	if f.FolderID != nil {
		conds = append(conds, "folder_id = ?")
		args = append(args, *f.FolderID)
	}
	if f.Starred != nil {
		conds = append(conds, "starred = ?")
		args = append(args, boolInt(*f.Starred))
	}
	if f.Archived != nil {
		conds = append(conds, "archived = ?")
		args = append(args, boolInt(*f.Archived))
	}
	if f.Deleted != nil {
		conds = append(conds, "deleted = ?")
		args = append(args, boolInt(*f.Deleted))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote maps one row to a Note, applying the encrypted-marker contract:
// ciphertext present with empty plaintext columns yields the sentinel for
// both title and content, never a mix.
func scanNote(row rowScanner) (*models.Note, error) {
	var n models.Note
	var starred, archived, deleted, hidden, isSynced, isDirty int
	var createdAt, updatedAt, syncedAt int64
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.EncryptedTitle, &n.EncryptedContent, &n.IV, &n.Salt,
		&n.FolderID, &n.UserID, &starred, &archived, &deleted, &hidden,
		&createdAt, &updatedAt, &n.AttachmentCount, &isSynced, &isDirty, &syncedAt)
	if err != nil {
		return nil, err
	}
	n.Starred = starred != 0
	n.Archived = archived != 0
	n.Deleted = deleted != 0
	n.Hidden = hidden != 0
	n.IsSynced = isSynced != 0
	n.IsDirty = isDirty != 0
	if createdAt > 0 {
		n.CreatedAt = time.UnixMilli(createdAt)
	}
	if updatedAt > 0 {
		n.UpdatedAt = time.UnixMilli(updatedAt)
	}
	if syncedAt > 0 {
		n.SyncedAt = time.UnixMilli(syncedAt)
	}

	// A note is never partially decrypted: if either plaintext column is
	// missing next to ciphertext, both come back as the sentinel.
	if n.HasCiphertext() && (n.Title == "" || n.Content == "") {
		n.Title = models.EncryptedSentinel
		n.Content = models.EncryptedSentinel
	}
	return &n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
