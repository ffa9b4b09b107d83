package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/NiksRock/GDriveBridge/internal/transfer"
)

// Enqueuer implements transfer.Enqueuer on top of asynq.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

func (e *Enqueuer) EnqueueTransfer(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(TransferPayload{JobID: jobID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TypeTransferProcess, payload),
		asynq.Queue(QueueTransfer),
		asynq.MaxRetry(10))
	if err != nil {
		return fmt.Errorf("failed to enqueue transfer for job '%s': %w", jobID, err)
	}
	return nil
}

func (e *Enqueuer) EnqueueVerification(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(TransferPayload{JobID: jobID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TypeVerification, payload),
		asynq.Queue(QueueVerification),
		asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("failed to enqueue verification for job '%s': %w", jobID, err)
	}
	return nil
}

func (e *Enqueuer) EnqueueSourceDelete(ctx context.Context, task transfer.DeleteTask, delay time.Duration) error {
	payload, err := json.Marshal(DeletePayload{
		JobID:           task.JobID,
		SourceFileID:    task.SourceFileID,
		SourceAccountID: task.SourceAccountID,
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TypeSourceDelete, payload),
		asynq.Queue(QueueDelete),
		asynq.MaxRetry(3),
		asynq.ProcessIn(delay))
	if err != nil {
		return fmt.Errorf("failed to enqueue deletion of '%s': %w", task.SourceFileID, err)
	}
	return nil
}

// EnqueueQuotaResume schedules the delayed resume, de-duplicated by job id.
// A resume already pending for the job makes this a no-op.
func (e *Enqueuer) EnqueueQuotaResume(ctx context.Context, jobID string, delay time.Duration) error {
	payload, err := json.Marshal(TransferPayload{JobID: jobID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TypeQuotaResume, payload),
		asynq.Queue(QueueQuotaResume),
		asynq.MaxRetry(3),
		asynq.ProcessIn(delay),
		asynq.TaskID("quota-resume:"+jobID))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to schedule quota resume for job '%s': %w", jobID, err)
	}
	return nil
}
