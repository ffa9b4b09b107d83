// Package queue binds the pipeline to its durable task queue. Delivery is
// at-least-once; every payload carries only identifiers, never state, so a
// redelivered task re-reads the store and converges.
package queue

import (
	"time"

	"github.com/hibiken/asynq"
)

// Queue names, one per pipeline stage.
const (
	QueueTransfer     = "transfer"
	QueueVerification = "verification"
	QueueDelete       = "delete"
	QueueQuotaResume  = "quota-resume"
)

// Task type names.
const (
	TypeTransferProcess = "transfer:process"
	TypeVerification    = "transfer:verify"
	TypeSourceDelete    = "transfer:delete-source"
	TypeQuotaResume     = "transfer:quota-resume"
)

// TransferPayload identifies the job a task operates on.
type TransferPayload struct {
	JobID string `json:"jobId"`
}

// DeletePayload identifies one source object scheduled for deletion.
type DeletePayload struct {
	JobID           string `json:"jobId"`
	SourceFileID    string `json:"sourceFileId"`
	SourceAccountID string `json:"sourceAccountId"`
}

// Priorities gives the transfer queue most of the worker pool while the
// cleanup stages still drain.
func Priorities() map[string]int {
	return map[string]int{
		QueueTransfer:     5,
		QueueVerification: 2,
		QueueDelete:       2,
		QueueQuotaResume:  1,
	}
}

// RetryDelay backs off lock contention and transient failures linearly per
// attempt, capped at five minutes.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := time.Duration(n) * 30 * time.Second
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
