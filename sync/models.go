package sync

import (
	"time"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusSyncing   ActionStatus = "syncing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Entity types the mobile client mirrors locally.
const (
	EntityDocuments = "documents"
	EntityIncidents = "incidents"
	EntityTrainings = "trainings"
	EntityTasks     = "tasks"
)

// Action is one queued local mutation awaiting remote confirmation.
// Seq gives a total creation order per device; ActionID is the handle
// returned to callers.
type Action struct {
	Seq        uint         `gorm:"primarykey"`
	ActionID   string       `gorm:"uniqueIndex;size:36;not null"`
	Op         Op           `gorm:"size:8;not null"`
	EntityType string       `gorm:"size:32;not null"`
	EntityID   string       `gorm:"size:64"`
	Payload    []byte       `json:"payload"`
	RetryCount int          `gorm:"not null;default:0"`
	MaxRetries int          `gorm:"not null;default:3"`
	Status     ActionStatus `gorm:"size:12;index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Action) TableName() string {
	return "sync_actions"
}

// CacheEntry is one row of the read-through snapshot for an entity type.
// The snapshot is replaced wholesale on refresh, never merged.
type CacheEntry struct {
	ID         uint   `gorm:"primarykey"`
	EntityType string `gorm:"size:32;not null;uniqueIndex:idx_cache_entity"`
	EntityID   string `gorm:"size:64;not null;uniqueIndex:idx_cache_entity"`
	Payload    []byte
	UpdatedAt  time.Time
}

func (CacheEntry) TableName() string {
	return "sync_cache"
}

// Meta keeps last-sync bookkeeping per entity type.
type Meta struct {
	ID         uint   `gorm:"primarykey"`
	EntityType string `gorm:"size:32;not null;uniqueIndex"`
	LastSyncAt time.Time
}

func (Meta) TableName() string {
	return "sync_meta"
}
