package models

import (
	"sort"
	"strings"
)

// SortField selects the note list sort key.
type SortField string

const (
	SortByUpdatedAt SortField = "updatedAt"
	SortByCreatedAt SortField = "createdAt"
	SortByTitle     SortField = "title"
)

// SortOrder selects the direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortNotes orders notes in place by the given field and direction.
//
// Ciphertext titles are meaningless for lexicographic order, so notes still
// carrying the encrypted sentinel fall back to their creation timestamp when
// sorting by title.
func SortNotes(notes []*Note, field SortField, order SortOrder) {
	less := func(a, b *Note) bool {
		switch field {
		case SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortByTitle:
			if a.Title == EncryptedSentinel || b.Title == EncryptedSentinel {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if order == SortDesc {
			return less(notes[j], notes[i])
		}
		return less(notes[i], notes[j])
	})
}
