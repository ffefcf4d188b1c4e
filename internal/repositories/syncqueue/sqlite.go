// Package syncqueue is the durable, ordered log of pending local mutations.
// Duplicate enqueues for the same (type, id, operation) tuple coalesce into
// the existing non-terminal row, and items are drained in FIFO order to
// preserve causal order of edits to the same resource.
package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/dbx"
	"github.com/nvoitko/inkwell/internal/models"
)

// MaxRetries bounds automatic retry attempts. Items at or over the bound are
// excluded from drains but stay visible for diagnostics.
const MaxRetries = 3

// Repository is the sync_queue table contract.
type Repository interface {
	// Enqueue records a mutation, coalescing with any pending or syncing
	// item for the same tuple. The payload of a coalesced item is replaced
	// with the newer one. Returns the queue item id.
	Enqueue(ctx context.Context, rt models.ResourceType, resourceID string, op models.Operation, payload []byte) (string, error)

	// ListPending lists pending items in FIFO order, including errored
	// items still under the retry bound.
	ListPending(ctx context.Context) ([]*models.SyncQueueItem, error)

	// GetByID returns one item or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SyncQueueItem, error)

	MarkSyncing(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string) error
	MarkError(ctx context.Context, id string, message string) error

	// Delete removes a queue row (after successful sync).
	Delete(ctx context.Context, id string) error

	// DeleteForResource removes every non-terminal item for a resource,
	// used when a temp-id entity is deleted before it ever synced.
	DeleteForResource(ctx context.Context, rt models.ResourceType, resourceID string) error

	// PruneOld removes terminal or abandoned items created before the cutoff.
	PruneOld(ctx context.Context, olderThan time.Duration) (int, error)
}

// SQLiteRepository implements Repository using a DBTX.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

const queueColumns = `id, resource_type, resource_id, operation, payload, status, retry_count, error_message, created_at, synced_at`

func (r *SQLiteRepository) Enqueue(ctx context.Context, rt models.ResourceType, resourceID string, op models.Operation, payload []byte) (string, error) {
	if payload == nil {
		payload = []byte{}
	}

	var existing string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM sync_queue
		WHERE resource_type = ? AND resource_id = ? AND operation = ? AND status IN ('pending', 'syncing', 'error')
	`, string(rt), resourceID, string(op)).Scan(&existing)
	if err == nil {
		// A coalesced payload is a fresh edit, so it starts over with a
		// clean retry budget.
		_, err = r.db.ExecContext(ctx,
			`UPDATE sync_queue SET payload = ?, status = 'pending', retry_count = 0, error_message = '' WHERE id = ?`, payload, existing)
		if err != nil {
			return "", fmt.Errorf("failed to coalesce queue item: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up queue item: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, resource_type, resource_id, operation, payload, status, retry_count, error_message, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, '', ?, 0)
	`, id, string(rt), resourceID, string(op), payload, r.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM sync_queue
		WHERE status IN ('pending', 'error')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncQueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) MarkSyncing(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, `UPDATE sync_queue SET status = 'syncing' WHERE id = ?`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = 'synced', synced_at = ? WHERE id = ?`, r.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkError(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = 'error', retry_count = retry_count + 1, error_message = ? WHERE id = ?`,
		message, id)
	if err != nil {
		return fmt.Errorf("failed to mark error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteForResource(ctx context.Context, rt models.ResourceType, resourceID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE resource_type = ? AND resource_id = ? AND status <> 'synced'`, string(rt), resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete queue items for resource: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PruneOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().Add(-olderThan).UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE created_at < ? AND (status = 'synced' OR retry_count >= ?)`, cutoff, MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id, query string) error {
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update queue status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.SyncQueueItem, error) {
	var item models.SyncQueueItem
	var rt, op, status string
	var createdAt, syncedAt int64
	err := row.Scan(&item.ID, &rt, &item.ResourceID, &op, &item.Payload,
		&status, &item.RetryCount, &item.ErrorMessage, &createdAt, &syncedAt)
	if err != nil {
		return nil, err
	}
	item.ResourceType = models.ResourceType(rt)
	item.Operation = models.Operation(op)
	item.Status = models.QueueStatus(status)
	item.CreatedAt = time.UnixMilli(createdAt)
	if syncedAt > 0 {
		item.SyncedAt = time.UnixMilli(syncedAt)
	}
	return &item, nil
}
