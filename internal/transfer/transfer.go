// Package transfer implements the migration pipeline: tree expansion,
// exactly-once copy execution, the resumable job state machine, move-mode
// verification and safe source deletion. All durable state lives in the
// store; every handler here is safe under at-least-once redelivery.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/NiksRock/GDriveBridge/internal/coord"
	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
)

// ErrAccountBusy signals lock contention. It is a job-level retryable
// condition: the queue's own redelivery backoff re-attempts the job, and
// no data was touched before acquisition succeeded.
var ErrAccountBusy = errors.New("account is locked by another transfer")

// ErrValidation covers request-level failures (unknown account, same
// source and destination, empty selection). Jobs failing validation are
// never created.
var ErrValidation = errors.New("transfer validation failed")

// ClientFunc builds a per-account storage client from the stored,
// encrypted credential. Decryption happens inside the factory so the
// pipeline never touches plaintext tokens.
type ClientFunc func(ctx context.Context, account *models.Account) (drive.Client, error)

// Governor grants per-account write slots (see coord.RateGovernor).
type Governor interface {
	Throttle(ctx context.Context, accountID string) error
}

// Locker is the per-account mutual-exclusion lease (see coord.AccountLock).
type Locker interface {
	Acquire(ctx context.Context, accountID, ownerID string) (bool, error)
	Extend(ctx context.Context, accountID, ownerID string) error
	Release(ctx context.Context, accountID, ownerID string) error
}

// Notifier publishes best-effort progress events (see coord.RedisNotifier).
type Notifier interface {
	Publish(ctx context.Context, p coord.Progress)
}

// DeleteTask is one queued source deletion for a verified move.
type DeleteTask struct {
	JobID           string `json:"jobId"`
	SourceFileID    string `json:"sourceFileId"`
	SourceAccountID string `json:"sourceAccountId"`
}

// Enqueuer is the durable queue surface the pipeline needs. Delivery is
// at-least-once; every handler tolerates redelivery.
type Enqueuer interface {
	EnqueueTransfer(ctx context.Context, jobID string) error
	EnqueueVerification(ctx context.Context, jobID string) error
	EnqueueSourceDelete(ctx context.Context, task DeleteTask, delay time.Duration) error

	// EnqueueQuotaResume schedules the delayed one-shot resume,
	// de-duplicated by job id so repeated pause events don't stack.
	EnqueueQuotaResume(ctx context.Context, jobID string, delay time.Duration) error
}
