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
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/models"
	"github.com/nvoitko/inkwell/internal/netx"
	"github.com/nvoitko/inkwell/internal/repositories"
)

// FoldersService serves the folder tree with the same stale-while-revalidate
// shape as notes, plus optimistic folder mutations.
type FoldersService struct {
	repos *repositories.Repositories
	apic  api.Client
	net   netx.Provider
	log   logging.Logger

	ttlMinutes int

	mu             sync.Mutex
	lastLocalWrite time.Time
	onUpdate       func([]*models.Folder)
}

func NewFoldersService(repos *repositories.Repositories, apic api.Client, net netx.Provider, log logging.Logger, ttlMinutes int) *FoldersService {
	return &FoldersService{repos: repos, apic: apic, net: net, log: log, ttlMinutes: ttlMinutes}
}

// SetOnUpdate registers the callback receiving refreshed trees from
// background revalidation.
func (s *FoldersService) SetOnUpdate(fn func([]*models.Folder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// GetFolders returns the cached tree immediately when warm, revalidating in
// the background; cold and offline yields an empty tree.
func (s *FoldersService) GetFolders(ctx context.Context, refresh bool) ([]*models.Folder, error) {
	cached, err := s.repos.Folders.GetAll(ctx)
	if err != nil {
		s.log.Error(ctx, "reading cached folders failed", "err", err)
		cached = nil
	}

	if len(cached) > 0 && !refresh {
		go s.revalidate(context.WithoutCancel(ctx))
		return cached, nil
	}

	if !s.net.Online(ctx) {
		if cached == nil {
			return []*models.Folder{}, nil
		}
		return cached, nil
	}

	page, err := s.apic.ListFolders(ctx, api.Conditional{})
	if err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) {
			if cached == nil {
				return []*models.Folder{}, nil
			}
			return cached, nil
		}
		return nil, fmt.Errorf("fetch folders: %w", err)
	}

	s.persistPage(ctx, page)
	return s.repos.Folders.GetAll(ctx)
}

// Path returns the breadcrumb chain for a folder id from the cached tree.
func (s *FoldersService) Path(ctx context.Context, id string) ([]*models.Folder, error) {
	all, err := s.repos.Folders.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Folder, len(all))
	for _, f := range all {
		byID[f.ID] = f
	}
	return models.FolderPath(byID, id), nil
}

// CreateFolder mirrors a UI create optimistically, following the same
// online-direct / offline-queued split as notes.
func (s *FoldersService) CreateFolder(ctx context.Context, in *models.Folder) (*models.Folder, error) {
	now := time.Now()
	f := &models.Folder{
		ID:        models.NewTempID(),
		Name:      in.Name,
		Color:     in.Color,
		ParentID:  in.ParentID,
		UserID:    in.UserID,
		SortOrder: in.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.net.Online(ctx) {
		created, err := s.apic.CreateFolder(ctx, f)
		switch {
		case err == nil:
			if err := s.repos.Folders.Upsert(ctx, created); err != nil {
				s.log.Error(ctx, "caching created folder failed", "folder_id", created.ID, "err", err)
			}
			s.invalidateFolders(ctx)
			s.touchLocalWrite()
			return created, nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return nil, fmt.Errorf("create folder: %w", err)
		}
	}

	if err := s.repos.Folders.Upsert(ctx, f); err != nil {
		return nil, fmt.Errorf("store offline folder: %w", err)
	}
	payload, err := folderPayload(f)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceFolder, f.ID, models.OpCreate, payload); err != nil {
		return nil, fmt.Errorf("queue folder create: %w", err)
	}
	s.touchLocalWrite()
	return f, nil
}

// UpdateFolder renames/recolors/re-parents a folder.
func (s *FoldersService) UpdateFolder(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	f.UpdatedAt = time.Now()

	if models.IsTempID(f.ID) {
		if err := s.repos.Folders.Upsert(ctx, f); err != nil {
			return nil, fmt.Errorf("store offline edit: %w", err)
		}
		payload, err := folderPayload(f)
		if err != nil {
			return nil, err
		}
		if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceFolder, f.ID, models.OpCreate, payload); err != nil {
			return nil, fmt.Errorf("queue folder create: %w", err)
		}
		s.touchLocalWrite()
		return f, nil
	}

	if s.net.Online(ctx) {
		updated, err := s.apic.UpdateFolder(ctx, f)
		switch {
		case err == nil:
			if err := s.repos.Folders.Upsert(ctx, updated); err != nil {
				s.log.Error(ctx, "caching updated folder failed", "folder_id", updated.ID, "err", err)
			}
			s.invalidateFolders(ctx)
			s.touchLocalWrite()
			return updated, nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return nil, fmt.Errorf("update folder: %w", err)
		}
	}

	if err := s.repos.Folders.Upsert(ctx, f); err != nil {
		return nil, fmt.Errorf("store offline edit: %w", err)
	}
	payload, err := folderPayload(f)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceFolder, f.ID, models.OpUpdate, payload); err != nil {
		return nil, fmt.Errorf("queue folder update: %w", err)
	}
	s.touchLocalWrite()
	return f, nil
}

// DeleteFolder removes a folder; notes inside fall back to the root.
func (s *FoldersService) DeleteFolder(ctx context.Context, id string) error {
	if models.IsTempID(id) {
		if err := s.repos.Queue.DeleteForResource(ctx, models.ResourceFolder, id); err != nil {
			return err
		}
		if err := s.repos.Notes.ReassignFolder(ctx, id, ""); err != nil {
			return err
		}
		if err := s.repos.Folders.Delete(ctx, id); err != nil {
			return err
		}
		s.touchLocalWrite()
		return nil
	}

	if s.net.Online(ctx) {
		err := s.apic.DeleteFolder(ctx, id)
		switch {
		case err == nil:
			if err := s.repos.Notes.ReassignFolder(ctx, id, ""); err != nil {
				s.log.Error(ctx, "reassigning notes after folder delete failed", "folder_id", id, "err", err)
			}
			if err := s.repos.Folders.Delete(ctx, id); err != nil {
				s.log.Error(ctx, "removing deleted folder from cache failed", "folder_id", id, "err", err)
			}
			s.invalidateFolders(ctx)
			s.touchLocalWrite()
			return nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return fmt.Errorf("delete folder: %w", err)
		}
	}

	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceFolder, id, models.OpDelete, nil); err != nil {
		return fmt.Errorf("queue folder delete: %w", err)
	}
	if err := s.repos.Notes.ReassignFolder(ctx, id, ""); err != nil {
		return err
	}
	if err := s.repos.Folders.Delete(ctx, id); err != nil {
		return err
	}
	s.touchLocalWrite()
	return nil
}

func (s *FoldersService) revalidate(ctx context.Context) {
	s.mu.Lock()
	skip := time.Since(s.lastLocalWrite) < optimisticWindow
	s.mu.Unlock()
	if skip {
		return
	}

	expired, err := s.repos.CacheMeta.IsExpired(ctx, models.ResourceFolder, "")
	if err != nil {
		s.log.Warn(ctx, "cache metadata read failed", "err", err)
		expired = true
	}
	if !expired {
		return
	}

	cond := api.Conditional{}
	if meta, err := s.repos.CacheMeta.Get(ctx, models.ResourceFolder, ""); err == nil && meta != nil {
		cond.ETag = meta.ETag
		cond.LastModified = meta.LastModified
	}

	page, err := s.apic.ListFolders(ctx, cond)
	if errors.Is(err, common.ErrNotModified) {
		return
	}
	if err != nil {
		s.log.Warn(ctx, "background folder revalidation failed", "err", err)
		return
	}

	s.persistPage(ctx, page)

	fresh, err := s.repos.Folders.GetAll(ctx)
	if err != nil {
		s.log.Warn(ctx, "reading revalidated folders failed", "err", err)
		return
	}
	s.notify(fresh)
}

func (s *FoldersService) persistPage(ctx context.Context, page *api.FoldersPage) {
	if err := s.repos.Folders.StoreCached(ctx, page.Folders); err != nil {
		s.log.Error(ctx, "persisting fetched folders failed", "err", err)
		return
	}
	if err := s.repos.CacheMeta.Set(ctx, models.ResourceFolder, "", page.Validators.ETag, page.Validators.LastModified, s.ttlMinutes); err != nil {
		s.log.Warn(ctx, "recording folder cache validators failed", "err", err)
	}
}

func (s *FoldersService) invalidateFolders(ctx context.Context) {
	if err := s.repos.CacheMeta.Invalidate(ctx, models.ResourceFolder, ""); err != nil {
		s.log.Warn(ctx, "invalidating folder cache metadata failed", "err", err)
	}
}

func (s *FoldersService) notify(fs []*models.Folder) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(fs)
	}
}

func (s *FoldersService) touchLocalWrite() {
	s.mu.Lock()
	s.lastLocalWrite = time.Now()
	s.mu.Unlock()
}

func folderPayload(f *models.Folder) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode folder payload: %w", err)
	}
	return b, nil
}
