package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nvoitko/inkwell/internal/api"
	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/encryption"
	"github.com/nvoitko/inkwell/internal/keystore"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
	"github.com/nvoitko/inkwell/internal/repositories"
	"github.com/nvoitko/inkwell/internal/repositories/cachemeta"
	"github.com/nvoitko/inkwell/internal/repositories/folders"
	"github.com/nvoitko/inkwell/internal/repositories/notes"
	"github.com/nvoitko/inkwell/internal/repositories/syncqueue"
)

// fakeNet is a NetworkStatusProvider with a switchable answer.
type fakeNet struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeNet) Online(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeNet) set(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

// fakeClient is a scripted api.Client that counts calls.
type fakeClient struct {
	mu sync.Mutex

	listNotesFn  func(opts api.ListOptions, cond api.Conditional) (*api.NotesPage, error)
	createNoteFn func(n *models.Note) (*models.Note, error)
	updateNoteFn func(n *models.Note) (*models.Note, error)
	deleteNoteFn func(id string) error

	listFoldersFn  func(cond api.Conditional) (*api.FoldersPage, error)
	createFolderFn func(f *models.Folder) (*models.Folder, error)

	listNotesCalls  int
	createNoteCalls int
	updateNoteCalls int
	deleteNoteCalls int
}

func (f *fakeClient) ListNotes(ctx context.Context, opts api.ListOptions, cond api.Conditional) (*api.NotesPage, error) {
	f.mu.Lock()
	f.listNotesCalls++
	fn := f.listNotesFn
	f.mu.Unlock()
	if fn == nil {
		return &api.NotesPage{}, nil
	}
	return fn(opts, cond)
}

func (f *fakeClient) CountNotes(ctx context.Context, filters models.NoteFilters) (int, error) {
	return 0, common.ErrNetworkUnavailable
}

func (f *fakeClient) CreateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	f.mu.Lock()
	f.createNoteCalls++
	fn := f.createNoteFn
	f.mu.Unlock()
	if fn == nil {
		return nil, common.ErrNetworkUnavailable
	}
	return fn(n)
}

func (f *fakeClient) UpdateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	f.mu.Lock()
	f.updateNoteCalls++
	fn := f.updateNoteFn
	f.mu.Unlock()
	if fn == nil {
		return nil, common.ErrNetworkUnavailable
	}
	return fn(n)
}

func (f *fakeClient) DeleteNote(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deleteNoteCalls++
	fn := f.deleteNoteFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(id)
}

func (f *fakeClient) ListFolders(ctx context.Context, cond api.Conditional) (*api.FoldersPage, error) {
	f.mu.Lock()
	fn := f.listFoldersFn
	f.mu.Unlock()
	if fn == nil {
		return &api.FoldersPage{}, nil
	}
	return fn(cond)
}

func (f *fakeClient) CreateFolder(ctx context.Context, fo *models.Folder) (*models.Folder, error) {
	f.mu.Lock()
	fn := f.createFolderFn
	f.mu.Unlock()
	if fn == nil {
		return nil, common.ErrNetworkUnavailable
	}
	return fn(fo)
}

func (f *fakeClient) UpdateFolder(ctx context.Context, fo *models.Folder) (*models.Folder, error) {
	return fo, nil
}

func (f *fakeClient) DeleteFolder(ctx context.Context, id string) error { return nil }
func (f *fakeClient) Ping(ctx context.Context) error                    { return nil }

const testSchema = `
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
);
CREATE TABLE folders (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  color TEXT NOT NULL DEFAULT '',
  parent_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  sort_order INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE TABLE cache_metadata (
  resource_type TEXT NOT NULL,
  resource_id TEXT NOT NULL DEFAULT '',
  etag TEXT NOT NULL DEFAULT '',
  last_modified TEXT NOT NULL DEFAULT '',
  cached_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL,
  PRIMARY KEY (resource_type, resource_id)
);
CREATE TABLE sync_queue (
  id TEXT PRIMARY KEY,
  resource_type TEXT NOT NULL,
  resource_id TEXT NOT NULL,
  operation TEXT NOT NULL,
  payload BLOB NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  retry_count INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  synced_at INTEGER NOT NULL DEFAULT 0
);
`

type harness struct {
	repos *repositories.Repositories
	apic  *fakeClient
	net   *fakeNet
	enc   *encryption.Adapter
	keys  *keystore.KeySource
}

func setup(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	log := logging.NewNopLogger()
	keys := keystore.NewKeySource(keystore.NewMemoryStore())
	return &harness{
		repos: &repositories.Repositories{
			Notes:     notes.NewSQLiteRepository(db, log),
			Folders:   folders.NewSQLiteRepository(db),
			CacheMeta: cachemeta.NewSQLiteTracker(db),
			Queue:     syncqueue.NewSQLiteRepository(db),
			DB:        db,
		},
		apic: &fakeClient{},
		net:  &fakeNet{},
		enc:  encryption.NewAdapter(keys, log),
		keys: keys,
	}
}

func (h *harness) notesService(storeDecrypted bool) *NotesService {
	return NewNotesService(h.repos, h.apic, h.enc, h.net, logging.NewNopLogger(), 5, storeDecrypted)
}

func (h *harness) foldersService() *FoldersService {
	return NewFoldersService(h.repos, h.apic, h.net, logging.NewNopLogger(), 5)
}

func (h *harness) syncProcessor(cooldown time.Duration) *SyncProcessor {
	return NewSyncProcessor(h.repos, h.apic, h.net, logging.NewNopLogger(), cooldown)
}

func serverNote(id, title string, age time.Duration) *models.Note {
	now := time.Now().Add(-age).Truncate(time.Millisecond)
	return &models.Note{
		ID:        id,
		Title:     title,
		Content:   "content of " + title,
		UserID:    "user-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
