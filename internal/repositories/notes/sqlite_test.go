package notes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nvoitko/inkwell/internal/logging"
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
CREATE TABLE notes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  encrypted_title TEXT NOT NULL DEFAULT '',
  encrypted_content TEXT NOT NULL DEFAULT '',
  iv TEXT NOT NULL DEFAULT '',
  salt TEXT NOT NULL DEFAULT '',
  folder_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  starred INTEGER NOT NULL DEFAULT 0,
  archived INTEGER NOT NULL DEFAULT 0,
  deleted INTEGER NOT NULL DEFAULT 0,
  hidden INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  attachment_count INTEGER NOT NULL DEFAULT 0,
  is_synced INTEGER NOT NULL DEFAULT 0,
  is_dirty INTEGER NOT NULL DEFAULT 0,
  synced_at INTEGER NOT NULL DEFAULT 0
);`)
	require.NoError(t, err)
	return db
}

func newRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	return NewSQLiteRepository(db, logging.NewNopLogger()), db
}

func sampleNote(id string) *models.Note {
	now := time.Now().Truncate(time.Millisecond)
	return &models.Note{
		ID:        id,
		Title:     "title " + id,
		Content:   "content " + id,
		UserID:    "user-1",
		CreatedAt: now,
		UpdatedAt: now,
		IsSynced:  true,
	}
}

func encryptedNote(id string) *models.Note {
	n := sampleNote(id)
	n.Title = models.EncryptedSentinel
	n.Content = models.EncryptedSentinel
	n.EncryptedTitle = "ZW5jCg=="
	n.EncryptedContent = "ZW5jMgo="
	n.IV = "aXYK"
	n.Salt = "c2FsdAo="
	return n
}

func TestGetCached_EncryptedMarkerMapping(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreCached(ctx, []*models.Note{encryptedNote("n1")}, false))

	got, err := repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, models.EncryptedSentinel, got[0].Title)
	require.Equal(t, models.EncryptedSentinel, got[0].Content)
}

func TestStoreCached_StoreDecryptedFalseClearsPlaintext(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	n := encryptedNote("n1")
	n.Title = "leaked title"
	n.Content = "leaked content"

	require.NoError(t, repo.StoreCached(ctx, []*models.Note{n}, false))

	var title, content string
	require.NoError(t, db.QueryRow(`SELECT title, content FROM notes WHERE id = 'n1'`).Scan(&title, &content))
	require.Empty(t, title)
	require.Empty(t, content)
}

func TestStoreCached_StoreDecryptedTrueKeepsPlaintext(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	n := encryptedNote("n1")
	n.Title = "decrypted title"
	n.Content = "decrypted content"

	require.NoError(t, repo.StoreCached(ctx, []*models.Note{n}, true))

	got, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "decrypted title", got.Title)
	require.Equal(t, "decrypted content", got.Content)
}

func TestGetCached_Filters(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	a := sampleNote("a")
	a.Starred = true
	b := sampleNote("b")
	b.FolderID = "f1"
	c := sampleNote("c")
	c.Deleted = true
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{a, b, c}, true))

	starred := true
	got, err := repo.GetCached(ctx, models.NoteFilters{Starred: &starred})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)

	folder := "f1"
	got, err = repo.GetCached(ctx, models.NoteFilters{FolderID: &folder})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)

	notDeleted := false
	got, err = repo.GetCached(ctx, models.NoteFilters{Deleted: &notDeleted})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestGetCached_OrderedByUpdatedAtDesc(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	old := sampleNote("old")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := sampleNote("fresh")
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{old, fresh}, true))

	got, err := repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "fresh", got[0].ID)
	require.Equal(t, "old", got[1].ID)
}

func TestClear_PreservesUnsyncedRows(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	synced := sampleNote("synced")
	local := sampleNote("local")
	local.IsSynced = false
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{synced, local}, true))

	require.NoError(t, repo.Clear(ctx, false))

	got, err := repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "local", got[0].ID)

	require.NoError(t, repo.Clear(ctx, true))
	got, err = repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClearPlaintext_WipesOnlyCiphertextNotes(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	enc := encryptedNote("enc")
	enc.Title = "cached plaintext"
	enc.Content = "cached plaintext"
	plain := sampleNote("plain")
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{enc, plain}, true))

	require.NoError(t, repo.ClearPlaintext(ctx))

	got, err := repo.GetByID(ctx, "enc")
	require.NoError(t, err)
	require.Equal(t, models.EncryptedSentinel, got.Title)
	require.Equal(t, models.EncryptedSentinel, got.Content)

	got, err = repo.GetByID(ctx, "plain")
	require.NoError(t, err)
	require.Equal(t, "title plain", got.Title)
}

func TestGetCached_SelfHealsCorruptRows(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreCached(ctx, []*models.Note{sampleNote("ok")}, true))
	_, err := db.Exec(`INSERT INTO notes (id, created_at, updated_at, is_synced) VALUES ('bad', 0, 0, 1)`)
	require.NoError(t, err)

	got, err := repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Empty(t, got)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes WHERE id = 'bad'`).Scan(&n))
	require.Zero(t, n)

	// healthy rows survive the heal and come back on the next read
	got, err = repo.GetCached(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ok", got[0].ID)
}

func TestReassignFolder(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	n := sampleNote("n1")
	n.FolderID = "temp_f"
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{n}, true))

	require.NoError(t, repo.ReassignFolder(ctx, "temp_f", "srv_f"))

	got, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "srv_f", got.FolderID)
}

func TestCount(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	a := sampleNote("a")
	a.Starred = true
	require.NoError(t, repo.StoreCached(ctx, []*models.Note{a, sampleNote("b")}, true))

	n, err := repo.Count(ctx, models.NoteFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	starred := true
	n, err = repo.Count(ctx, models.NoteFilters{Starred: &starred})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
