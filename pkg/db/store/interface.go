package store

import (
	"context"
	"errors"
	"time"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrQuotaExceeded is returned by AddDailyBytes when the conditional
	// increment would push an account past its daily byte cap. The counter
	// is left unchanged in that case.
	ErrQuotaExceeded = errors.New("daily byte quota exceeded")
)

// TransferStore defines the persistence surface for jobs, items, accounts
// and audit events. Persisted records are the only durable shared state;
// everything in memory is disposable and reconstructible from them.
type TransferStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Account operations
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetUserAccount(ctx context.Context, userID, id string) (*models.Account, error)

	// AddDailyBytes atomically increments the account's daily byte counter,
	// gated by cap, in a single conditional statement. Never split into a
	// read followed by a write.
	AddDailyBytes(ctx context.Context, accountID string, delta, cap int64) error

	// ResetDailyBytesIfStale zeroes the daily counter when the last reset
	// predates dayStart (local-day rollover).
	ResetDailyBytesIfStale(ctx context.Context, accountID string, dayStart time.Time) error

	// Job operations
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobWithItems(ctx context.Context, id string) (*models.Job, error)
	JobStatus(ctx context.Context, id string) (models.JobStatus, error)
	ListJobs(ctx context.Context, userID string) ([]models.Job, error)

	SetJobTotals(ctx context.Context, id string, totalItems, totalBytes int64) error
	MarkJobRunning(ctx context.Context, id string) error
	PauseJob(ctx context.Context, id string) error
	PauseJobForQuota(ctx context.Context, id string) (bool, error)
	ResumeJob(ctx context.Context, id string) (bool, error)
	CancelJob(ctx context.Context, id string) error
	FinishJob(ctx context.Context, id string, status models.JobStatus) error
	FailJob(ctx context.Context, id string) error
	IncrementJobProgress(ctx context.Context, id string, bytes int64) error
	IncrementJobFailed(ctx context.Context, id string) error

	// Item operations
	UpsertItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	GetItemBySource(ctx context.Context, jobID, sourceFileID string) (*models.Item, error)
	CountItems(ctx context.Context, jobID string) (totalItems, totalBytes int64, err error)
	ListItems(ctx context.Context, jobID string) ([]models.Item, error)
	ListClaimableItems(ctx context.Context, jobID string) ([]models.Item, error)

	SetItemRunning(ctx context.Context, id string) error
	CompleteItem(ctx context.Context, id, destinationFileID string) error
	FailItem(ctx context.Context, id, message string) error
	ResetItemPending(ctx context.Context, id, message string, countAttempt bool) error

	// Audit events (append-only)
	AppendEvent(ctx context.Context, jobID, eventType, message string) error
	ListEvents(ctx context.Context, jobID string) ([]models.Event, error)
}
