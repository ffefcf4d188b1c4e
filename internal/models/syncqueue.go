package models

import "time"

// ResourceType identifies what a queue item or cache row refers to.
type ResourceType string

const (
	ResourceNote   ResourceType = "note"
	ResourceFolder ResourceType = "folder"
)

// Operation is a queued mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusSyncing QueueStatus = "syncing"
	StatusError   QueueStatus = "error"
	StatusSynced  QueueStatus = "synced"
)

// Terminal reports whether the status ends the item's lifecycle.
func (s QueueStatus) Terminal() bool {
	return s == StatusSynced
}

// SyncQueueItem is one durable pending mutation. At most one non-terminal
// item may exist per (ResourceType, ResourceID, Operation) tuple; duplicate
// enqueues coalesce into the existing row.
type SyncQueueItem struct {
	ID           string
	ResourceType ResourceType
	ResourceID   string
	Operation    Operation
	Payload      []byte // serialized mutation, ciphertext already applied
	Status       QueueStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	SyncedAt     time.Time
}

// CacheMetadata records conditional-request validators and expiry for one
// resource (or, with ResourceID empty, a whole collection). Absence of a row
// means cold cache: refetch unconditionally.
type CacheMetadata struct {
	ResourceType ResourceType
	ResourceID   string
	ETag         string
	LastModified string
	CachedAt     time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the row's TTL window has passed at now.
func (m *CacheMetadata) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
