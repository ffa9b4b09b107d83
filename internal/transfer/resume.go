package transfer

import (
	"context"
	"fmt"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// QuotaResumer clears a quota pause after the cooldown window. The task is
// a delayed one-shot per job; it only acts if the job is still
// AUTO_PAUSED_QUOTA at fire time, so a user pause or cancel issued during
// the cooldown is never overridden.
type QuotaResumer struct {
	store store.TransferStore
	enq   Enqueuer
	log   log.LoggerService
}

func NewQuotaResumer(st store.TransferStore, enq Enqueuer, logger log.LoggerService) *QuotaResumer {
	return &QuotaResumer{
		store: st,
		enq:   enq,
		log:   logger.Named("resume"),
	}
}

func (r *QuotaResumer) ProcessQuotaResume(ctx context.Context, jobID string) error {
	status, err := r.store.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job '%s': %w", jobID, err)
	}
	if status != models.JobAutoPausedQuota {
		r.log.Info("Quota resume skipped for job '%s' (status %s)", jobID, status)
		return nil
	}

	transitioned, err := r.store.ResumeJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	if err := r.store.AppendEvent(ctx, jobID, models.EventResumeAuto,
		"Quota cooldown elapsed; transfer resumed"); err != nil {
		r.log.Warn("Failed to append resume event for job '%s': %v", jobID, err)
	}

	r.log.Info("Job '%s' resumed after quota cooldown", jobID)
	return r.enq.EnqueueTransfer(ctx, jobID)
}
