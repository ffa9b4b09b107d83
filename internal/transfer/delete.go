package transfer

import (
	"context"
	"fmt"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// Deleter removes verified source objects. Every delete re-reads the job
// status immediately before the remote call, so a cancellation issued
// after verification still blocks any remaining deletions.
type Deleter struct {
	store      store.TransferStore
	governor   Governor
	clientFunc ClientFunc
	log        log.LoggerService
}

func NewDeleter(st store.TransferStore, governor Governor, clientFunc ClientFunc, logger log.LoggerService) *Deleter {
	return &Deleter{
		store:      st,
		governor:   governor,
		clientFunc: clientFunc,
		log:        logger.Named("delete"),
	}
}

// ProcessSourceDelete handles one queued deletion. Failures are logged but
// never roll back prior deletions; cleanup after a verified copy is
// best-effort.
func (d *Deleter) ProcessSourceDelete(ctx context.Context, task DeleteTask) error {
	status, err := d.store.JobStatus(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job '%s': %w", task.JobID, err)
	}
	if status != models.JobCompleted {
		msg := fmt.Sprintf("Deletion of %s blocked: job is %s, not COMPLETED", task.SourceFileID, status)
		d.log.Warn(msg)
		d.appendEvent(ctx, task.JobID, models.EventDeleteBlocked, msg)
		return nil
	}

	account, err := d.store.GetAccount(ctx, task.SourceAccountID)
	if err != nil {
		return err
	}
	client, err := d.clientFunc(ctx, account)
	if err != nil {
		return err
	}

	if err := d.governor.Throttle(ctx, task.SourceAccountID); err != nil {
		return err
	}
	if err := client.Delete(ctx, task.SourceFileID); err != nil {
		return fmt.Errorf("failed to delete source object '%s': %w", task.SourceFileID, err)
	}

	d.appendEvent(ctx, task.JobID, models.EventSourceDeleted,
		fmt.Sprintf("Deleted source object %s", task.SourceFileID))
	return nil
}

func (d *Deleter) appendEvent(ctx context.Context, jobID, eventType, message string) {
	if err := d.store.AppendEvent(ctx, jobID, eventType, message); err != nil {
		d.log.Warn("Failed to append event '%s' for job '%s': %v", eventType, jobID, err)
	}
}
