package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	require.True(t, IsTempID(id))
	require.NotEqual(t, id, NewTempID())
	require.False(t, IsTempID("srv_123"))
}

func TestHasCiphertext(t *testing.T) {
	require.False(t, (&Note{}).HasCiphertext())
	require.True(t, (&Note{EncryptedTitle: "abc"}).HasCiphertext())
	require.True(t, (&Note{EncryptedContent: "abc"}).HasCiphertext())
}

func TestNoteFiltersMatch(t *testing.T) {
	folder := "f1"
	starred := true
	n := &Note{ID: "1", FolderID: "f1", Starred: true}

	require.True(t, NoteFilters{}.Match(n))
	require.True(t, NoteFilters{FolderID: &folder, Starred: &starred}.Match(n))

	other := "f2"
	require.False(t, NoteFilters{FolderID: &other}.Match(n))

	archived := true
	require.False(t, NoteFilters{Archived: &archived}.Match(n))
}
