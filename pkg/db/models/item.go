package models

import (
	"time"
)

// ItemStatus is the persisted per-item state machine
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemRunning   ItemStatus = "RUNNING"
	ItemCompleted ItemStatus = "COMPLETED"
	ItemFailed    ItemStatus = "FAILED"
)

// Item represents one file or folder discovered under a job's source roots.
//
// (JobID, SourceFileID) is unique so expansion stays idempotent; re-running
// it after a crash performs zero duplicate writes. An item with a non-empty
// DestinationFileID is logically completed regardless of its stored status.
type Item struct {
	ID    string `gorm:"primaryKey;type:text"`
	JobID string `gorm:"type:text;not null;uniqueIndex:idx_item_job_source,priority:1;index:idx_item_job_status"`

	SourceFileID   string  `gorm:"type:text;not null;uniqueIndex:idx_item_job_source,priority:2"`
	SourceParentID *string `gorm:"type:text"` // nil for roots

	DestinationFileID *string `gorm:"type:text"` // nil until created at the destination

	FileName string `gorm:"type:text;not null"`
	MimeType string `gorm:"type:text"`

	// nil for folders
	SizeBytes *int64

	// Root items carry depth 0; every child is exactly parent depth + 1.
	// Processing claims items in (depth ASC, created_at ASC) order so a
	// folder is always attempted before anything inside it.
	Depth int `gorm:"not null;default:0"`

	Status       ItemStatus `gorm:"type:text;not null;index:idx_item_job_status"`
	RetryCount   int        `gorm:"not null;default:0"`
	ErrorMessage string     `gorm:"type:text"`

	// Source md5 recorded at expansion time, compared against the
	// destination during move-mode verification
	Checksum string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Size returns the item's byte size, zero for folders.
func (i *Item) Size() int64 {
	if i.SizeBytes == nil {
		return 0
	}
	return *i.SizeBytes
}
