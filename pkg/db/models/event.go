package models

import (
	"time"
)

// Event types appended by the pipeline stages
const (
	EventCreated            = "created"
	EventExpansionCompleted = "expansion.completed"
	EventExpansionFailed    = "expansion.failed"
	EventItemFailed         = "item.failed"
	EventCopyRecovered      = "copy.recovered"
	EventQuotaPaused        = "quota.paused"
	EventResumeAuto         = "resume.auto"
	EventJobFinished        = "job.finished"
	EventVerificationPassed = "verification.passed"
	EventVerificationFailed = "verification.failed"
	EventSourceDeleted      = "source.deleted"
	EventDeleteBlocked      = "delete.blocked"
)

// Event is one append-only audit entry for a job. Events are write-only
// and never mutated; the report layer consumes them as-is.
type Event struct {
	ID    uint   `gorm:"primaryKey"`
	JobID string `gorm:"type:text;not null;index:idx_event_job"`

	Type    string `gorm:"type:text;not null"`
	Message string `gorm:"type:text"`

	CreatedAt time.Time
}
