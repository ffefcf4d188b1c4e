// Package api is the client for the remote notes/folders REST API. It speaks
// conditional GET (If-None-Match / If-Modified-Since), captures ETag and
// Last-Modified validators, and maps transport failures onto the engine's
// offline code paths.
package api

import (
	"time"

	"github.com/nvoitko/inkwell/internal/models"
)

// Conditional carries previously received validators for a conditional GET.
// Zero value means "fetch unconditionally".
type Conditional struct {
	ETag         string
	LastModified string
}

// Validators are the freshness tokens returned with a full response.
type Validators struct {
	ETag         string
	LastModified string
}

// ListOptions narrow and paginate a list request.
type ListOptions struct {
	Filters models.NoteFilters
	Page    int
	PerPage int
}

// NotesPage is one page of notes plus response validators.
type NotesPage struct {
	Notes      []*models.Note
	Total      int
	Validators Validators
}

// FoldersPage is the folder collection plus response validators.
type FoldersPage struct {
	Folders    []*models.Folder
	Validators Validators
}

// noteDTO is the wire shape of a note.
type noteDTO struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	EncryptedTitle   string    `json:"encryptedTitle,omitempty"`
	EncryptedContent string    `json:"encryptedContent,omitempty"`
	IV               string    `json:"iv,omitempty"`
	Salt             string    `json:"salt,omitempty"`
	FolderID         string    `json:"folderId,omitempty"`
	UserID           string    `json:"userId"`
	Starred          bool      `json:"starred"`
	Archived         bool      `json:"archived"`
	Deleted          bool      `json:"deleted"`
	Hidden           bool      `json:"hidden"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	AttachmentCount  int       `json:"attachmentCount"`
}

type folderDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	UserID    string    `json:"userId"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func noteFromDTO(d *noteDTO) *models.Note {
	return &models.Note{
		ID:               d.ID,
		Title:            d.Title,
		Content:          d.Content,
		EncryptedTitle:   d.EncryptedTitle,
		EncryptedContent: d.EncryptedContent,
		IV:               d.IV,
		Salt:             d.Salt,
		FolderID:         d.FolderID,
		UserID:           d.UserID,
		Starred:          d.Starred,
		Archived:         d.Archived,
		Deleted:          d.Deleted,
		Hidden:           d.Hidden,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		AttachmentCount:  d.AttachmentCount,
	}
}

func noteToDTO(n *models.Note) *noteDTO {
	return &noteDTO{
		ID:               n.ID,
		Title:            n.Title,
		Content:          n.Content,
		EncryptedTitle:   n.EncryptedTitle,
		EncryptedContent: n.EncryptedContent,
		IV:               n.IV,
		Salt:             n.Salt,
		FolderID:         n.FolderID,
		UserID:           n.UserID,
		Starred:          n.Starred,
		Archived:         n.Archived,
		Deleted:          n.Deleted,
		Hidden:           n.Hidden,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		AttachmentCount:  n.AttachmentCount,
	}
}

func folderFromDTO(d *folderDTO) *models.Folder {
	return &models.Folder{
		ID:        d.ID,
		Name:      d.Name,
		Color:     d.Color,
		ParentID:  d.ParentID,
		UserID:    d.UserID,
		SortOrder: d.SortOrder,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func folderToDTO(f *models.Folder) *folderDTO {
	return &folderDTO{
		ID:        f.ID,
		Name:      f.Name,
		Color:     f.Color,
		ParentID:  f.ParentID,
		UserID:    f.UserID,
		SortOrder: f.SortOrder,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}
