package models

import (
	"time"
)

// TransferMode selects between copy-only and copy-verify-delete behaviour
type TransferMode string

const (
	ModeCopy TransferMode = "COPY"
	ModeMove TransferMode = "MOVE"
)

// JobStatus is the persisted job state machine.
//
// PENDING -> RUNNING -> {COMPLETED | FAILED}, with PAUSED (user),
// AUTO_PAUSED_QUOTA (quota) and CANCELLED (user, terminal) as side states.
// PAUSED and AUTO_PAUSED_QUOTA return to PENDING on resume.
type JobStatus string

const (
	JobPending         JobStatus = "PENDING"
	JobRunning         JobStatus = "RUNNING"
	JobCompleted       JobStatus = "COMPLETED"
	JobFailed          JobStatus = "FAILED"
	JobPaused          JobStatus = "PAUSED"
	JobAutoPausedQuota JobStatus = "AUTO_PAUSED_QUOTA"
	JobCancelled       JobStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job represents one user-initiated migration request.
// Jobs are never hard-deleted; they remain as the audit trail.
type Job struct {
	ID     string `gorm:"primaryKey;type:text"`
	UserID string `gorm:"type:text;not null;index:idx_job_user"`

	SourceAccountID      string `gorm:"type:text;not null;index"`
	DestinationAccountID string `gorm:"type:text;not null;index"`
	DestinationFolderID  string `gorm:"type:text;not null"`

	Mode   TransferMode `gorm:"type:text;not null"`
	Status JobStatus    `gorm:"type:text;not null;index"`

	// Totals are fixed once expansion completes and never decrease
	TotalItems int64 `gorm:"not null;default:0"`
	TotalBytes int64 `gorm:"not null;default:0"`

	CompletedItems   int64 `gorm:"not null;default:0"`
	FailedItems      int64 `gorm:"not null;default:0"`
	TransferredBytes int64 `gorm:"not null;default:0"`

	// Pre-scan output carried for the job detail view
	RiskFlags []string `gorm:"serializer:json"`
	Warnings  []string `gorm:"serializer:json"`

	StartedAt  *time.Time
	PausedAt   *time.Time
	FinishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	Items  []Item  `gorm:"foreignKey:JobID;references:ID"`
	Events []Event `gorm:"foreignKey:JobID;references:ID"`
}
