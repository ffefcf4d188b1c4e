// Package services contains the application services of the sync engine: the
// stale-while-revalidate fetch orchestrators for notes and folders, the
// optimistic mutation paths feeding the sync queue, and the queue drain
// processor.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nvoitko/inkwell/internal/api"
	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/encryption"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
	"github.com/nvoitko/inkwell/internal/netx"
	"github.com/nvoitko/inkwell/internal/repositories"
)

const (
	// visibleBatchSize is how many notes are decrypted eagerly before the
	// list is handed back; the remainder decrypts in a background pass.
	visibleBatchSize = 20

	// optimisticWindow suppresses background revalidation right after a
	// local optimistic write, so a fetch never overwrites a newer edit.
	optimisticWindow = 10 * time.Second
)

// NotesQuery shapes a GetNotes call.
type NotesQuery struct {
	Filters models.NoteFilters
	SortBy  models.SortField
	Order   models.SortOrder

	// Refresh forces a blocking remote fetch even on a warm cache.
	Refresh bool
}

func (q NotesQuery) sortField() models.SortField {
	if q.SortBy == "" {
		return models.SortByUpdatedAt
	}
	return q.SortBy
}

func (q NotesQuery) sortOrder() models.SortOrder {
	if q.Order == "" {
		return models.SortDesc
	}
	return q.Order
}

// NotesService is the stale-while-revalidate fetch orchestrator and the
// optimistic mutation path for notes.
type NotesService struct {
	repos *repositories.Repositories
	apic  api.Client
	enc   *encryption.Adapter
	net   netx.Provider
	log   logging.Logger

	ttlMinutes int

	mu             sync.Mutex
	storeDecrypted bool
	lastLocalWrite time.Time
	onUpdate       func([]*models.Note)
}

// NewNotesService wires the orchestrator. storeDecrypted is the user's
// plaintext-caching opt-in at startup.
func NewNotesService(repos *repositories.Repositories, apic api.Client, enc *encryption.Adapter, net netx.Provider, log logging.Logger, ttlMinutes int, storeDecrypted bool) *NotesService {
	return &NotesService{
		repos:          repos,
		apic:           apic,
		enc:            enc,
		net:            net,
		log:            log,
		ttlMinutes:     ttlMinutes,
		storeDecrypted: storeDecrypted,
	}
}

// SetOnUpdate registers the callback that receives merged results from
// background revalidation and deferred decryption. A navigation-away simply
// swaps in a nil callback; in-flight work still completes and lands in the
// local store.
func (s *NotesService) SetOnUpdate(fn func([]*models.Note)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// StoreDecrypted reports the current plaintext-caching preference.
func (s *NotesService) StoreDecrypted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeDecrypted
}

// SetStoreDecrypted flips the plaintext-caching preference. Disabling it
// wipes every previously cached plaintext column immediately.
func (s *NotesService) SetStoreDecrypted(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.storeDecrypted = enabled
	s.mu.Unlock()

	if !enabled {
		if err := s.repos.Notes.ClearPlaintext(ctx); err != nil {
			return fmt.Errorf("clear cached plaintext: %w", err)
		}
	}
	return nil
}

// GetNotes serves the list view.
//
// Warm cache: cached rows return synchronously and a background revalidation
// starts. Cold cache offline: an explicit empty result, not an error. Cold
// cache online: one blocking unfiltered fetch seeds the store, then the
// locally filtered slice returns.
func (s *NotesService) GetNotes(ctx context.Context, q NotesQuery) ([]*models.Note, error) {
	cached, err := s.repos.Notes.GetCached(ctx, q.Filters)
	if err != nil {
		s.log.Error(ctx, "reading cached notes failed", "err", err)
		cached = nil
	}

	if len(cached) > 0 && !q.Refresh {
		view := s.present(ctx, cached, q)
		go s.revalidate(context.WithoutCancel(ctx), q)
		return view, nil
	}

	if !s.net.Online(ctx) {
		if len(cached) > 0 {
			return s.present(ctx, cached, q), nil
		}
		// Offline and uncached is a terminal empty state.
		return []*models.Note{}, nil
	}

	// Cold (or forced) blocking fetch, unfiltered to fully seed the cache.
	page, err := s.apic.ListNotes(ctx, api.ListOptions{}, api.Conditional{})
	if err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) && len(cached) > 0 {
			return s.present(ctx, cached, q), nil
		}
		if errors.Is(err, common.ErrNetworkUnavailable) {
			return []*models.Note{}, nil
		}
		return nil, fmt.Errorf("fetch notes: %w", err)
	}

	s.persistPage(ctx, page)

	fresh, err := s.repos.Notes.GetCached(ctx, q.Filters)
	if err != nil {
		return nil, fmt.Errorf("read back cached notes: %w", err)
	}
	return s.present(ctx, fresh, q), nil
}

// CountNotes prefers the server aggregate and falls back to the local cache
// when offline.
func (s *NotesService) CountNotes(ctx context.Context, filters models.NoteFilters) (int, error) {
	if s.net.Online(ctx) {
		n, err := s.apic.CountNotes(ctx, filters)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, common.ErrNetworkUnavailable) {
			return 0, err
		}
	}
	return s.repos.Notes.Count(ctx, filters)
}

// present sorts, decrypts the visible batch eagerly, and schedules the
// remainder for a deferred pass that merges by note identity.
func (s *NotesService) present(ctx context.Context, notes []*models.Note, q NotesQuery) []*models.Note {
	models.SortNotes(notes, q.sortField(), q.sortOrder())

	split := min(visibleBatchSize, len(notes))
	head := s.enc.DecryptMany(ctx, notes[:split])

	out := make([]*models.Note, 0, len(notes))
	out = append(out, head...)
	out = append(out, notes[split:]...)

	if split < len(notes) {
		tail := notes[split:]
		go s.decryptDeferred(context.WithoutCancel(ctx), out, tail)
	}
	return out
}

// decryptDeferred decrypts the remainder in the background and pushes a
// merged slice to the update callback. Merging is by id, never by position,
// so a concurrent mutation cannot misattribute rows.
func (s *NotesService) decryptDeferred(ctx context.Context, snapshot, tail []*models.Note) {
	decrypted := s.enc.DecryptMany(ctx, tail)

	byID := make(map[string]*models.Note, len(decrypted))
	for _, n := range decrypted {
		byID[n.ID] = n
	}

	merged := make([]*models.Note, len(snapshot))
	for i, n := range snapshot {
		if d, ok := byID[n.ID]; ok {
			merged[i] = d
		} else {
			merged[i] = n
		}
	}
	s.notify(merged)
}

// revalidate runs the warm-cache background cycle: a conditional request, a
// no-op on 304, and a store+metadata update on fresh data. All failures are
// swallowed with logging; the caller already has valid cached data.
func (s *NotesService) revalidate(ctx context.Context, q NotesQuery) {
	s.mu.Lock()
	skip := time.Since(s.lastLocalWrite) < optimisticWindow
	s.mu.Unlock()
	if skip {
		s.log.Debug(ctx, "skipping revalidation inside optimistic window")
		return
	}

	expired, err := s.repos.CacheMeta.IsExpired(ctx, models.ResourceNote, "")
	if err != nil {
		s.log.Warn(ctx, "cache metadata read failed", "err", err)
		expired = true
	}
	if !expired {
		return
	}

	cond := api.Conditional{}
	if meta, err := s.repos.CacheMeta.Get(ctx, models.ResourceNote, ""); err == nil && meta != nil {
		cond.ETag = meta.ETag
		cond.LastModified = meta.LastModified
	}

	page, err := s.apic.ListNotes(ctx, api.ListOptions{}, cond)
	if errors.Is(err, common.ErrNotModified) {
		return
	}
	if err != nil {
		s.log.Warn(ctx, "background revalidation failed", "err", err)
		return
	}

	s.persistPage(ctx, page)

	fresh, err := s.repos.Notes.GetCached(ctx, q.Filters)
	if err != nil {
		s.log.Warn(ctx, "reading revalidated notes failed", "err", err)
		return
	}
	models.SortNotes(fresh, q.sortField(), q.sortOrder())
	s.notify(s.enc.DecryptMany(ctx, fresh))
}

// persistPage writes a full server response into the store and records its
// validators. Plaintext reaches disk only under the decrypted-cache opt-in.
func (s *NotesService) persistPage(ctx context.Context, page *api.NotesPage) {
	notes := page.Notes
	storeDecrypted := s.StoreDecrypted()
	if storeDecrypted {
		notes = s.enc.DecryptMany(ctx, notes)
	}
	for _, n := range notes {
		n.IsSynced = true
		n.IsDirty = false
		n.SyncedAt = time.Now()
	}

	if err := s.repos.Notes.StoreCached(ctx, notes, storeDecrypted); err != nil {
		s.log.Error(ctx, "persisting fetched notes failed", "err", err)
		return
	}
	if err := s.repos.CacheMeta.Set(ctx, models.ResourceNote, "", page.Validators.ETag, page.Validators.LastModified, s.ttlMinutes); err != nil {
		s.log.Warn(ctx, "recording cache validators failed", "err", err)
	}
}

func (s *NotesService) notify(notes []*models.Note) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(notes)
	}
}

func (s *NotesService) touchLocalWrite() {
	s.mu.Lock()
	s.lastLocalWrite = time.Now()
	s.mu.Unlock()
}

func notePayload(n *models.Note) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode note payload: %w", err)
	}
	return b, nil
}
