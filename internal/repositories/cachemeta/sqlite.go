// Package cachemeta tracks per-resource conditional-request validators
// (ETag, Last-Modified) and cache expiry. Absence of a row means cold cache:
// the next fetch goes out unconditionally. TTLs are minutes, not hours:
// server truth is the reference, the local cache only an accelerator.
package cachemeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nvoitko/inkwell/internal/dbx"
	"github.com/nvoitko/inkwell/internal/models"
)

// Tracker is the cache_metadata table contract. resourceID is "" for
// collection-level rows.
type Tracker interface {
	// Get returns the row, or nil when the cache is cold.
	Get(ctx context.Context, rt models.ResourceType, resourceID string) (*models.CacheMetadata, error)

	// Set records validators received at now with a TTL in minutes.
	Set(ctx context.Context, rt models.ResourceType, resourceID, etag, lastModified string, ttlMinutes int) error

	// Invalidate drops the row so the next fetch is unconditional.
	Invalidate(ctx context.Context, rt models.ResourceType, resourceID string) error

	// IsExpired reports whether the row is missing or past its TTL.
	IsExpired(ctx context.Context, rt models.ResourceType, resourceID string) (bool, error)
}

// SQLiteTracker implements Tracker using a DBTX.
type SQLiteTracker struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteTracker returns a new SQLiteTracker bound to the given DBTX.
func NewSQLiteTracker(db dbx.DBTX) *SQLiteTracker {
	return &SQLiteTracker{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (t *SQLiteTracker) WithClock(now func() time.Time) *SQLiteTracker {
	t.now = now
	return t
}

func (t *SQLiteTracker) Get(ctx context.Context, rt models.ResourceType, resourceID string) (*models.CacheMetadata, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT resource_type, resource_id, etag, last_modified, cached_at, expires_at
		FROM cache_metadata WHERE resource_type = ? AND resource_id = ?`, string(rt), resourceID)

	var m models.CacheMetadata
	var typ string
	var cachedAt, expiresAt int64
	err := row.Scan(&typ, &m.ResourceID, &m.ETag, &m.LastModified, &cachedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache metadata: %w", err)
	}
	m.ResourceType = models.ResourceType(typ)
	m.CachedAt = time.UnixMilli(cachedAt)
	m.ExpiresAt = time.UnixMilli(expiresAt)
	return &m, nil
}

func (t *SQLiteTracker) Set(ctx context.Context, rt models.ResourceType, resourceID, etag, lastModified string, ttlMinutes int) error {
	now := t.now()
	expires := now.Add(time.Duration(ttlMinutes) * time.Minute)
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO cache_metadata (resource_type, resource_id, etag, last_modified, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_type, resource_id) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, string(rt), resourceID, etag, lastModified, now.UnixMilli(), expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set cache metadata: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) Invalidate(ctx context.Context, rt models.ResourceType, resourceID string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM cache_metadata WHERE resource_type = ? AND resource_id = ?`, string(rt), resourceID)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache metadata: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) IsExpired(ctx context.Context, rt models.ResourceType, resourceID string) (bool, error) {
	m, err := t.Get(ctx, rt, resourceID)
	if err != nil {
		return true, err
	}
	if m == nil {
		return true, nil
	}
	return m.Expired(t.now()), nil
}
