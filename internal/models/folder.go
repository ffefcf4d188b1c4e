package models

import "time"

// Folder is a node in the user's folder tree. ParentID chains must stay
// acyclic; traversal stops at a missing parent.
type Folder struct {
	ID        string
	Name      string
	Color     string
	ParentID  string // empty = root
	UserID    string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FolderPath computes the breadcrumb path for id from a set of folders,
// root first. A missing parent truncates the path; a cycle terminates it at
// the first repeated node instead of looping forever.
func FolderPath(folders map[string]*Folder, id string) []*Folder {
	var rev []*Folder
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		f, ok := folders[id]
		if !ok {
			break
		}
		seen[id] = true
		rev = append(rev, f)
		id = f.ParentID
	}
	path := make([]*Folder, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// WouldCycle reports whether re-parenting folder id under newParentID would
// introduce a cycle in the tree.
func WouldCycle(folders map[string]*Folder, id, newParentID string) bool {
	seen := make(map[string]bool)
	for cur := newParentID; cur != "" && !seen[cur]; {
		if cur == id {
			return true
		}
		seen[cur] = true
		f, ok := folders[cur]
		if !ok {
			return false
		}
		cur = f.ParentID
	}
	return false
}
