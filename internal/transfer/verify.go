package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// Verifier re-validates a completed move before any source object may be
// deleted: count integrity first, then per-file checksum equality at the
// destination. Any mismatch blocks deletion for the whole job.
type Verifier struct {
	store       store.TransferStore
	enq         Enqueuer
	clientFunc  ClientFunc
	deleteDelay time.Duration
	log         log.LoggerService
}

func NewVerifier(st store.TransferStore, enq Enqueuer, clientFunc ClientFunc, deleteDelay time.Duration, logger log.LoggerService) *Verifier {
	if deleteDelay <= 0 {
		deleteDelay = 5 * time.Second
	}
	return &Verifier{
		store:       st,
		enq:         enq,
		clientFunc:  clientFunc,
		deleteDelay: deleteDelay,
		log:         logger.Named("verify"),
	}
}

// ProcessVerification runs one verification pass. The job state is read
// fresh here and again after the checksum sweep, so a cancellation racing
// in at any point blocks the deletes.
func (v *Verifier) ProcessVerification(ctx context.Context, jobID string) error {
	job, err := v.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job '%s': %w", jobID, err)
	}

	if job.Mode != models.ModeMove || job.Status != models.JobCompleted {
		v.log.Info("Skipping verification for job '%s' (mode %s, status %s)", jobID, job.Mode, job.Status)
		return nil
	}

	items, err := v.store.ListItems(ctx, jobID)
	if err != nil {
		return err
	}

	if err := v.checkCounts(ctx, job, items); err != nil {
		return nil
	}

	destAccount, err := v.store.GetAccount(ctx, job.DestinationAccountID)
	if err != nil {
		return err
	}
	destClient, err := v.clientFunc(ctx, destAccount)
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]
		if item.SizeBytes == nil || item.Checksum == "" || item.DestinationFileID == nil {
			continue
		}

		remote, err := destClient.GetChecksum(ctx, *item.DestinationFileID)
		if err != nil {
			return fmt.Errorf("checksum fetch for item '%s' failed: %w", item.ID, err)
		}
		if remote != item.Checksum {
			v.fail(ctx, jobID, fmt.Sprintf(
				"Checksum mismatch for %s: source %s, destination %s; deletion blocked",
				item.FileName, item.Checksum, remote))
			return nil
		}
	}

	// Re-confirm COMPLETED right before scheduling deletes: a cancel that
	// landed during the checksum sweep must win.
	status, err := v.store.JobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status != models.JobCompleted {
		v.log.Warn("Job '%s' left COMPLETED during verification (now %s), no deletes queued", jobID, status)
		return nil
	}

	v.appendEvent(ctx, jobID, models.EventVerificationPassed,
		fmt.Sprintf("Verification passed (%d items); scheduling source deletion", len(items)))

	for i := range items {
		item := &items[i]
		if item.Status != models.ItemCompleted {
			continue
		}
		task := DeleteTask{
			JobID:           jobID,
			SourceFileID:    item.SourceFileID,
			SourceAccountID: job.SourceAccountID,
		}
		if err := v.enq.EnqueueSourceDelete(ctx, task, v.deleteDelay); err != nil {
			return fmt.Errorf("failed to queue source delete for '%s': %w", item.SourceFileID, err)
		}
	}

	v.log.Info("Queued %d source deletions for job '%s'", len(items), jobID)
	return nil
}

func (v *Verifier) checkCounts(ctx context.Context, job *models.Job, items []models.Item) error {
	var completed int64
	for i := range items {
		if items[i].Status == models.ItemCompleted {
			completed++
		}
	}
	if completed != job.TotalItems {
		v.fail(ctx, job.ID, fmt.Sprintf(
			"Count mismatch: %d of %d items completed; deletion blocked", completed, job.TotalItems))
		return fmt.Errorf("count integrity failed for job '%s'", job.ID)
	}
	return nil
}

func (v *Verifier) fail(ctx context.Context, jobID, message string) {
	v.log.Error("Verification failed for job '%s': %s", jobID, message)
	v.appendEvent(ctx, jobID, models.EventVerificationFailed, message)
}

func (v *Verifier) appendEvent(ctx context.Context, jobID, eventType, message string) {
	if err := v.store.AppendEvent(ctx, jobID, eventType, message); err != nil {
		v.log.Warn("Failed to append event '%s' for job '%s': %v", eventType, jobID, err)
	}
}
