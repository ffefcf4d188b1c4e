package folders

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE folders (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  color TEXT NOT NULL DEFAULT '',
  parent_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  sort_order INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func sampleFolder(id, parent string) *models.Folder {
	now := time.Now().Truncate(time.Millisecond)
	return &models.Folder{ID: id, Name: "folder " + id, ParentID: parent, UserID: "user-1", CreatedAt: now, UpdatedAt: now}
}

func TestUpsertAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleFolder("f1", "")))

	got, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "folder f1", got.Name)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsert_RejectsCycle(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleFolder("a", "")))
	require.NoError(t, repo.Upsert(ctx, sampleFolder("b", "a")))
	require.NoError(t, repo.Upsert(ctx, sampleFolder("c", "b")))

	// re-parenting a under c would close the loop a -> b -> c -> a
	bad := sampleFolder("a", "c")
	require.Error(t, repo.Upsert(ctx, bad))
}

func TestGetAll_Ordering(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	f1 := sampleFolder("f1", "")
	f1.SortOrder = 2
	f2 := sampleFolder("f2", "")
	f2.SortOrder = 1
	require.NoError(t, repo.StoreCached(ctx, []*models.Folder{f1, f2}))

	got, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "f2", got[0].ID)
}

func TestDeleteAndClear(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleFolder("f1", "")))
	require.NoError(t, repo.Upsert(ctx, sampleFolder("f2", "")))

	require.NoError(t, repo.Delete(ctx, "f1"))
	got, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, repo.Clear(ctx))
	got, err = repo.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}
