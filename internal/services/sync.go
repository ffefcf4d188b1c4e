package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nvoitko/inkwell/internal/api"
	"github.com/nvoitko/inkwell/internal/dbx"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
	"github.com/nvoitko/inkwell/internal/netx"
	"github.com/nvoitko/inkwell/internal/repositories"
	"github.com/nvoitko/inkwell/internal/repositories/folders"
	"github.com/nvoitko/inkwell/internal/repositories/notes"
	"github.com/nvoitko/inkwell/internal/repositories/syncqueue"
)

// SyncState is the processor's externally visible state.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncDraining SyncState = "draining"
)

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	Synced    int
	Failed    int
	Discarded int
	Skipped   int
}

// SyncProcessor drains the mutation queue against the remote API.
//
// Only one drain cycle runs at a time: concurrent callers share the
// in-flight result through a singleflight group instead of starting a second
// cycle. A cool-down after each completed cycle absorbs drains retriggered
// by connectivity flapping. Items are processed sequentially to preserve
// per-resource causal order.
type SyncProcessor struct {
	repos *repositories.Repositories
	apic  api.Client
	net   netx.Provider
	log   logging.Logger

	group    singleflight.Group
	cooldown time.Duration

	mu        sync.Mutex
	state     SyncState
	lastDrain time.Time
	lastRes   DrainResult
}

func NewSyncProcessor(repos *repositories.Repositories, apic api.Client, net netx.Provider, log logging.Logger, cooldown time.Duration) *SyncProcessor {
	return &SyncProcessor{
		repos:    repos,
		apic:     apic,
		net:      net,
		log:      log,
		cooldown: cooldown,
		state:    SyncIdle,
	}
}

// State reports whether a drain cycle is in flight.
func (p *SyncProcessor) State() SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Drain runs one queue drain cycle, or joins the one already running.
// Within the cool-down window after a completed cycle it returns the
// previous result without touching the network.
func (p *SyncProcessor) Drain(ctx context.Context) (DrainResult, error) {
	v, err, _ := p.group.Do("drain", func() (any, error) {
		p.mu.Lock()
		if !p.lastDrain.IsZero() && time.Since(p.lastDrain) < p.cooldown {
			res := p.lastRes
			p.mu.Unlock()
			return res, nil
		}
		p.state = SyncDraining
		p.mu.Unlock()

		res, err := p.drain(ctx)

		p.mu.Lock()
		p.state = SyncIdle
		p.lastDrain = time.Now()
		p.lastRes = res
		p.mu.Unlock()
		return res, err
	})
	res, _ := v.(DrainResult)
	return res, err
}

func (p *SyncProcessor) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	if !p.net.Online(ctx) {
		p.log.Debug(ctx, "skipping drain while offline")
		return res, nil
	}

	items, err := p.repos.Queue.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending mutations: %w", err)
	}

	touchedNotes := false
	touchedFolders := false

	for _, item := range items {
		// Race guard: the row may have been claimed since listing.
		cur, err := p.repos.Queue.GetByID(ctx, item.ID)
		if err != nil || cur.Status == models.StatusSyncing || cur.Status.Terminal() {
			res.Skipped++
			continue
		}

		// A queued update/delete against a still-temporary id is redundant:
		// the pending create already carries the latest state.
		if item.Operation != models.OpCreate && models.IsTempID(item.ResourceID) {
			if err := p.repos.Queue.Delete(ctx, item.ID); err != nil {
				p.log.Warn(ctx, "discarding redundant temp-id item failed", "item_id", item.ID, "err", err)
			}
			res.Discarded++
			continue
		}

		if item.RetryCount >= syncqueue.MaxRetries {
			res.Failed++
			continue
		}

		if err := p.repos.Queue.MarkSyncing(ctx, item.ID); err != nil {
			p.log.Warn(ctx, "claiming queue item failed", "item_id", item.ID, "err", err)
			res.Skipped++
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			p.log.Warn(ctx, "queue item sync failed", "item_id", item.ID,
				"resource", string(item.ResourceType), "op", string(item.Operation), "err", err)
			if merr := p.repos.Queue.MarkError(ctx, item.ID, err.Error()); merr != nil {
				p.log.Error(ctx, "recording sync failure failed", "item_id", item.ID, "err", merr)
			}
			res.Failed++
			continue
		}

		if err := p.repos.Queue.MarkSynced(ctx, item.ID); err != nil {
			p.log.Warn(ctx, "marking item synced failed", "item_id", item.ID, "err", err)
		}
		if err := p.repos.Queue.Delete(ctx, item.ID); err != nil {
			p.log.Warn(ctx, "pruning synced item failed", "item_id", item.ID, "err", err)
		}
		res.Synced++
		switch item.ResourceType {
		case models.ResourceNote:
			touchedNotes = true
		case models.ResourceFolder:
			touchedFolders = true
		}
	}

	// Invalidate after success so the next fetch retrieves authoritative
	// data instead of stale merged state.
	if touchedNotes {
		if err := p.repos.CacheMeta.Invalidate(ctx, models.ResourceNote, ""); err != nil {
			p.log.Warn(ctx, "invalidating notes cache failed", "err", err)
		}
	}
	if touchedFolders {
		if err := p.repos.CacheMeta.Invalidate(ctx, models.ResourceFolder, ""); err != nil {
			p.log.Warn(ctx, "invalidating folders cache failed", "err", err)
		}
	}
	return res, nil
}

func (p *SyncProcessor) processItem(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.ResourceType {
	case models.ResourceNote:
		return p.processNote(ctx, item)
	case models.ResourceFolder:
		return p.processFolder(ctx, item)
	default:
		return fmt.Errorf("unknown resource type %q", item.ResourceType)
	}
}

func (p *SyncProcessor) processNote(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		var n models.Note
		if err := json.Unmarshal(item.Payload, &n); err != nil {
			return fmt.Errorf("decode note payload: %w", err)
		}
		created, err := p.apic.CreateNote(ctx, &n)
		if err != nil {
			return err
		}
		return p.reconcileNoteID(ctx, item.ResourceID, created)

	case models.OpUpdate:
		var n models.Note
		if err := json.Unmarshal(item.Payload, &n); err != nil {
			return fmt.Errorf("decode note payload: %w", err)
		}
		updated, err := p.apic.UpdateNote(ctx, &n)
		if err != nil {
			return err
		}
		updated.IsSynced = true
		updated.SyncedAt = time.Now()
		return p.repos.Notes.Upsert(ctx, updated)

	case models.OpDelete:
		if err := p.apic.DeleteNote(ctx, item.ResourceID); err != nil {
			return err
		}
		return p.repos.Notes.Delete(ctx, item.ResourceID)

	default:
		return fmt.Errorf("unknown operation %q", item.Operation)
	}
}

func (p *SyncProcessor) processFolder(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		var f models.Folder
		if err := json.Unmarshal(item.Payload, &f); err != nil {
			return fmt.Errorf("decode folder payload: %w", err)
		}
		created, err := p.apic.CreateFolder(ctx, &f)
		if err != nil {
			return err
		}
		return p.reconcileFolderID(ctx, item.ResourceID, created)

	case models.OpUpdate:
		var f models.Folder
		if err := json.Unmarshal(item.Payload, &f); err != nil {
			return fmt.Errorf("decode folder payload: %w", err)
		}
		updated, err := p.apic.UpdateFolder(ctx, &f)
		if err != nil {
			return err
		}
		return p.repos.Folders.Upsert(ctx, updated)

	case models.OpDelete:
		if err := p.apic.DeleteFolder(ctx, item.ResourceID); err != nil {
			return err
		}
		return p.repos.Folders.Delete(ctx, item.ResourceID)

	default:
		return fmt.Errorf("unknown operation %q", item.Operation)
	}
}

// reconcileNoteID replaces a temporary note id with the server-assigned one:
// the temp row is deleted and the authoritative row inserted in one
// transaction, never renamed in place, so concurrent reads see either the
// old row or the new one but no half-updated state.
func (p *SyncProcessor) reconcileNoteID(ctx context.Context, tempID string, created *models.Note) error {
	created.IsSynced = true
	created.IsDirty = false
	created.SyncedAt = time.Now()

	return dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := notes.NewSQLiteRepository(tx, p.log)
		if err := repo.Delete(ctx, tempID); err != nil {
			return err
		}
		return repo.Upsert(ctx, created)
	})
}

// reconcileFolderID swaps a temporary folder id for the server-assigned one
// and rewrites every note reference to it.
func (p *SyncProcessor) reconcileFolderID(ctx context.Context, tempID string, created *models.Folder) error {
	return dbx.WithTx(ctx, p.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		folderRepo := folders.NewSQLiteRepository(tx)
		noteRepo := notes.NewSQLiteRepository(tx, p.log)

		if err := folderRepo.Delete(ctx, tempID); err != nil {
			return err
		}
		if err := folderRepo.Upsert(ctx, created); err != nil {
			return err
		}
		return noteRepo.ReassignFolder(ctx, tempID, created.ID)
	})
}

// PruneQueue removes terminal and abandoned items older than the given age.
func (p *SyncProcessor) PruneQueue(ctx context.Context, olderThanDays int) (int, error) {
	return p.repos.Queue.PruneOld(ctx, time.Duration(olderThanDays)*24*time.Hour)
}
