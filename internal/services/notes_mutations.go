package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvoitko/inkwell/internal/common"
	"github.com/nvoitko/inkwell/internal/encryption"
	"github.com/nvoitko/inkwell/internal/models"
)

// NoteInput is what the UI supplies when creating or editing a note.
type NoteInput struct {
	Title    string
	Content  string
	FolderID string
	UserID   string

	// Encrypt seals title and content client-side before anything leaves
	// the device or touches the local store.
	Encrypt bool
}

// CreateNote mirrors a UI create optimistically. Online, the server call is
// made directly and its failure surfaces to the caller as retry-able.
// Offline (or on a transport failure), the note is stored under a temporary
// id and a create is queued.
func (s *NotesService) CreateNote(ctx context.Context, in NoteInput) (*models.Note, error) {
	now := time.Now()
	n := &models.Note{
		ID:        models.NewTempID(),
		Title:     in.Title,
		Content:   in.Content,
		FolderID:  in.FolderID,
		UserID:    in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		IsDirty:   true,
	}

	if in.Encrypt {
		env, err := s.enc.EncryptForTransport(ctx, in.UserID, in.Title, in.Content)
		if err != nil {
			return nil, fmt.Errorf("encrypt note: %w", err)
		}
		applyEnvelope(n, env)
	}

	if s.net.Online(ctx) {
		created, err := s.apic.CreateNote(ctx, n)
		switch {
		case err == nil:
			created.IsSynced = true
			created.SyncedAt = time.Now()
			if err := s.repos.Notes.Upsert(ctx, s.cacheForm(ctx, created)); err != nil {
				s.log.Error(ctx, "caching created note failed", "note_id", created.ID, "err", err)
			}
			s.invalidateNotes(ctx)
			s.touchLocalWrite()
			return created, nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return nil, fmt.Errorf("create note: %w", err)
		}
		// transport failure: fall through to the offline path
	}

	if err := s.repos.Notes.Upsert(ctx, n); err != nil {
		return nil, fmt.Errorf("store offline note: %w", err)
	}
	payload, err := notePayload(n)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceNote, n.ID, models.OpCreate, payload); err != nil {
		return nil, fmt.Errorf("queue note create: %w", err)
	}
	s.touchLocalWrite()
	return n, nil
}

// UpdateNote applies an edit to an existing note. Edits to a still-temporary
// note fold into its pending create, which always carries the latest state.
func (s *NotesService) UpdateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	n.UpdatedAt = time.Now()
	n.IsDirty = true
	n.IsSynced = false

	if models.IsTempID(n.ID) {
		if err := s.repos.Notes.Upsert(ctx, n); err != nil {
			return nil, fmt.Errorf("store offline edit: %w", err)
		}
		payload, err := notePayload(n)
		if err != nil {
			return nil, err
		}
		if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceNote, n.ID, models.OpCreate, payload); err != nil {
			return nil, fmt.Errorf("queue note create: %w", err)
		}
		s.touchLocalWrite()
		return n, nil
	}

	if s.net.Online(ctx) {
		updated, err := s.apic.UpdateNote(ctx, n)
		switch {
		case err == nil:
			updated.IsSynced = true
			updated.SyncedAt = time.Now()
			if err := s.repos.Notes.Upsert(ctx, s.cacheForm(ctx, updated)); err != nil {
				s.log.Error(ctx, "caching updated note failed", "note_id", updated.ID, "err", err)
			}
			s.invalidateNotes(ctx)
			s.touchLocalWrite()
			return updated, nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return nil, fmt.Errorf("update note: %w", err)
		}
	}

	if err := s.repos.Notes.Upsert(ctx, n); err != nil {
		return nil, fmt.Errorf("store offline edit: %w", err)
	}
	payload, err := notePayload(n)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceNote, n.ID, models.OpUpdate, payload); err != nil {
		return nil, fmt.Errorf("queue note update: %w", err)
	}
	s.touchLocalWrite()
	return n, nil
}

// TrashNote is the soft delete: a flag mutation that rides the update path.
func (s *NotesService) TrashNote(ctx context.Context, id string) error {
	n, err := s.repos.Notes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	n.Deleted = true
	_, err = s.UpdateNote(ctx, n)
	return err
}

// DeleteNote removes a note permanently. A never-synced temp note just
// disappears locally, and its pending create is withdrawn so it cannot
// resurrect on the next drain.
func (s *NotesService) DeleteNote(ctx context.Context, id string) error {
	if models.IsTempID(id) {
		if err := s.repos.Queue.DeleteForResource(ctx, models.ResourceNote, id); err != nil {
			return err
		}
		if err := s.repos.Notes.Delete(ctx, id); err != nil {
			return err
		}
		s.touchLocalWrite()
		return nil
	}

	if s.net.Online(ctx) {
		err := s.apic.DeleteNote(ctx, id)
		switch {
		case err == nil:
			if err := s.repos.Notes.Delete(ctx, id); err != nil {
				s.log.Error(ctx, "removing deleted note from cache failed", "note_id", id, "err", err)
			}
			s.invalidateNotes(ctx)
			s.touchLocalWrite()
			return nil
		case !errors.Is(err, common.ErrNetworkUnavailable):
			return fmt.Errorf("delete note: %w", err)
		}
	}

	if _, err := s.repos.Queue.Enqueue(ctx, models.ResourceNote, id, models.OpDelete, nil); err != nil {
		return fmt.Errorf("queue note delete: %w", err)
	}
	if err := s.repos.Notes.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove note from cache: %w", err)
	}
	s.touchLocalWrite()
	return nil
}

// cacheForm prepares a server-returned note for the local cache, decrypting
// it first when the user opted in to plaintext caching.
func (s *NotesService) cacheForm(ctx context.Context, n *models.Note) *models.Note {
	if s.StoreDecrypted() {
		return s.enc.Decrypt(ctx, n)
	}
	return n
}

func (s *NotesService) invalidateNotes(ctx context.Context) {
	if err := s.repos.CacheMeta.Invalidate(ctx, models.ResourceNote, ""); err != nil {
		s.log.Warn(ctx, "invalidating notes cache metadata failed", "err", err)
	}
}

func applyEnvelope(n *models.Note, env *encryption.Envelope) {
	n.Title = env.Title
	n.Content = env.Content
	n.EncryptedTitle = env.EncryptedTitle
	n.EncryptedContent = env.EncryptedContent
	n.IV = env.IV
	n.Salt = env.Salt
}
