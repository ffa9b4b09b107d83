package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/NiksRock/GDriveBridge/internal/coord"
	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// WorkerConfig tunes the job processor.
type WorkerConfig struct {
	RetryLimit int
	Copier     CopierConfig
}

// Worker executes one transfer job end to end: lock acquisition, item
// claiming in depth order, exactly-once copy dispatch, failure accounting
// and finalization. It is safe to redeliver a job to a worker at any
// point; all claims and transitions are guarded in the store.
type Worker struct {
	store      store.TransferStore
	governor   Governor
	locker     Locker
	notifier   Notifier
	enq        Enqueuer
	clientFunc ClientFunc
	cfg        WorkerConfig
	log        log.LoggerService
}

func NewWorker(st store.TransferStore, governor Governor, locker Locker, notifier Notifier, enq Enqueuer, clientFunc ClientFunc, cfg WorkerConfig, logger log.LoggerService) *Worker {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 5
	}
	return &Worker{
		store:      st,
		governor:   governor,
		locker:     locker,
		notifier:   notifier,
		enq:        enq,
		clientFunc: clientFunc,
		cfg:        cfg,
		log:        logger.Named("worker"),
	}
}

// ProcessTransfer runs the job until it completes, fails, is paused or is
// cancelled. Returning ErrAccountBusy asks the queue to redeliver later;
// a nil return acknowledges the delivery.
func (w *Worker) ProcessTransfer(ctx context.Context, jobID string) error {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job '%s': %w", jobID, err)
	}

	// Paused, cancelled and finished jobs drop the delivery; resume
	// enqueues a fresh one.
	if job.Status.Terminal() || job.Status == models.JobPaused || job.Status == models.JobAutoPausedQuota {
		w.log.Info("Dropping delivery for job '%s' in status %s", jobID, job.Status)
		return nil
	}

	if err := w.store.MarkJobRunning(ctx, jobID); err != nil {
		return err
	}

	destAccount, err := w.store.GetAccount(ctx, job.DestinationAccountID)
	if err != nil {
		return fmt.Errorf("failed to load destination account: %w", err)
	}
	destClient, err := w.clientFunc(ctx, destAccount)
	if err != nil {
		return fmt.Errorf("failed to build destination client: %w", err)
	}

	// The destination account is exclusive for the whole run. Moves lock
	// the source too, so nothing else mutates a tree scheduled for
	// deletion.
	ownerID := jobID
	release, err := w.acquireLocks(ctx, job, ownerID)
	if err != nil {
		return err
	}
	defer release()

	copier := NewCopier(w.store, w.governor, w.enq, destClient, job.DestinationAccountID, w.cfg.Copier, w.log)

	if err := w.runPasses(ctx, job, copier, ownerID); err != nil {
		return err
	}

	return w.finalize(ctx, jobID, job.Mode)
}

// acquireLocks takes the destination lease, plus the source lease for
// moves. Contention on either surfaces as ErrAccountBusy with everything
// already acquired released.
func (w *Worker) acquireLocks(ctx context.Context, job *models.Job, ownerID string) (func(), error) {
	ok, err := w.locker.Acquire(ctx, job.DestinationAccountID, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("destination account '%s': %w", job.DestinationAccountID, ErrAccountBusy)
	}

	release := func() {
		if err := w.locker.Release(context.Background(), job.DestinationAccountID, ownerID); err != nil {
			w.log.Warn("Failed to release destination lock for '%s': %v", job.DestinationAccountID, err)
		}
	}

	if job.Mode != models.ModeMove || job.SourceAccountID == job.DestinationAccountID {
		return release, nil
	}

	ok, err = w.locker.Acquire(ctx, job.SourceAccountID, ownerID)
	if err != nil {
		release()
		return nil, err
	}
	if !ok {
		release()
		return nil, fmt.Errorf("source account '%s': %w", job.SourceAccountID, ErrAccountBusy)
	}

	releaseBoth := func() {
		if err := w.locker.Release(context.Background(), job.SourceAccountID, ownerID); err != nil {
			w.log.Warn("Failed to release source lock for '%s': %v", job.SourceAccountID, err)
		}
		release()
	}
	return releaseBoth, nil
}

func (w *Worker) extendLocks(ctx context.Context, job *models.Job, ownerID string) {
	if err := w.locker.Extend(ctx, job.DestinationAccountID, ownerID); err != nil {
		w.log.Warn("Failed to extend destination lock: %v", err)
	}
	if job.Mode == models.ModeMove && job.SourceAccountID != job.DestinationAccountID {
		if err := w.locker.Extend(ctx, job.SourceAccountID, ownerID); err != nil {
			w.log.Warn("Failed to extend source lock: %v", err)
		}
	}
}

// runPasses claims and processes items in depth order until no claimable
// items remain. Items deferred because their parent folder had no
// destination yet become claimable again on the next pass; a pass that
// defers everything and completes nothing means those parents failed, so
// the remaining subtree is failed rather than spun on.
func (w *Worker) runPasses(ctx context.Context, job *models.Job, copier *Copier, ownerID string) error {
	for {
		items, err := w.store.ListClaimableItems(ctx, job.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		progressed := false
		for i := range items {
			item := &items[i]

			// Freshness gate: reread the status so a pause or cancel
			// issued mid-run stops the loop within one item.
			status, err := w.store.JobStatus(ctx, job.ID)
			if err != nil {
				return err
			}
			if status != models.JobRunning {
				w.log.Info("Job '%s' left RUNNING (now %s), stopping", job.ID, status)
				return nil
			}

			w.extendLocks(ctx, job, ownerID)

			done, err := w.processItem(ctx, job, copier, item)
			if errors.Is(err, errStopQuota) {
				// Job is AUTO_PAUSED_QUOTA; the delayed resume owns the
				// next delivery, so this one is acknowledged.
				return nil
			}
			if err != nil {
				return err
			}
			if done {
				progressed = true
			}
		}

		if !progressed {
			if err := w.failRemaining(ctx, job.ID); err != nil {
				return err
			}
			return nil
		}
	}
}

// processItem handles a single item. The returned bool reports whether the
// item reached a settled state (completed or failed) this attempt.
func (w *Worker) processItem(ctx context.Context, job *models.Job, copier *Copier, item *models.Item) (bool, error) {
	destParentID, ready, err := w.resolveParent(ctx, job, item)
	if err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}

	if err := w.store.SetItemRunning(ctx, item.ID); err != nil {
		return false, err
	}

	var copyErr error
	if item.MimeType == drive.FolderMimeType {
		_, copyErr = copier.CreateFolderExactlyOnce(ctx, item.ID, item.FileName, destParentID)
	} else {
		_, copyErr = copier.CopyExactlyOnce(ctx, item.ID, item.SourceFileID, destParentID, item.FileName, item.Size())
	}

	if copyErr == nil {
		if err := w.store.IncrementJobProgress(ctx, job.ID, item.Size()); err != nil {
			return false, err
		}
		w.publishProgress(ctx, job.ID, item.FileName)
		return true, nil
	}

	if errors.Is(copyErr, context.Canceled) || errors.Is(copyErr, context.DeadlineExceeded) {
		return false, copyErr
	}

	// Quota pauses the job; the item goes back to PENDING without
	// consuming an attempt and the delivery is acknowledged. The delayed
	// resume re-enqueues the whole job.
	if drive.IsQuotaExceeded(copyErr) {
		if err := w.store.ResetItemPending(ctx, item.ID, copyErr.Error(), false); err != nil {
			return false, err
		}
		return false, errStopQuota
	}

	return true, w.recordItemFailure(ctx, job.ID, item, copyErr)
}

// errStopQuota unwinds runPasses after a quota pause without surfacing a
// handler error to the queue.
var errStopQuota = errors.New("stopped: quota pause")

// recordItemFailure either retries the item (back to PENDING, attempt
// counted) or fails it permanently once the retry budget is spent.
func (w *Worker) recordItemFailure(ctx context.Context, jobID string, item *models.Item, copyErr error) error {
	if item.RetryCount+1 < w.cfg.RetryLimit && drive.IsRetryable(copyErr) {
		w.log.Warn("Item '%s' attempt %d failed, will retry: %v", item.ID, item.RetryCount+1, copyErr)
		return w.store.ResetItemPending(ctx, item.ID, copyErr.Error(), true)
	}

	w.log.Error("Item '%s' (%s) failed permanently: %v", item.ID, item.FileName, copyErr)
	if err := w.store.FailItem(ctx, item.ID, copyErr.Error()); err != nil {
		return err
	}
	if err := w.store.IncrementJobFailed(ctx, jobID); err != nil {
		return err
	}
	w.appendEvent(ctx, jobID, models.EventItemFailed,
		fmt.Sprintf("Item %s failed: %v", item.FileName, copyErr))
	return nil
}

// resolveParent maps an item's source parent to its destination folder id.
// Roots map to the job's destination folder. A child whose parent folder
// failed is failed too (the subtree is unreachable); a child whose parent
// simply has not been created yet is left for a later pass.
func (w *Worker) resolveParent(ctx context.Context, job *models.Job, item *models.Item) (string, bool, error) {
	if item.SourceParentID == nil {
		return job.DestinationFolderID, true, nil
	}

	parent, err := w.store.GetItemBySource(ctx, job.ID, *item.SourceParentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Parent outside the selection: treat as a root attach point
			return job.DestinationFolderID, true, nil
		}
		return "", false, err
	}

	if parent.Status == models.ItemFailed {
		msg := fmt.Sprintf("parent folder %s failed", parent.FileName)
		if err := w.store.FailItem(ctx, item.ID, msg); err != nil {
			return "", false, err
		}
		if err := w.store.IncrementJobFailed(ctx, job.ID); err != nil {
			return "", false, err
		}
		w.appendEvent(ctx, job.ID, models.EventItemFailed,
			fmt.Sprintf("Item %s failed: %s", item.FileName, msg))
		return "", false, nil
	}

	if parent.DestinationFileID == nil || *parent.DestinationFileID == "" {
		// Parent not materialized yet; revisit on a later pass
		return "", false, nil
	}
	return *parent.DestinationFileID, true, nil
}

// failRemaining marks every still-claimable item failed. Reached only when
// a full pass settles nothing, which means every remaining item waits on a
// parent that will never materialize.
func (w *Worker) failRemaining(ctx context.Context, jobID string) error {
	items, err := w.store.ListClaimableItems(ctx, jobID)
	if err != nil {
		return err
	}
	for i := range items {
		item := &items[i]
		if err := w.store.FailItem(ctx, item.ID, "unreachable: no parent folder could be created"); err != nil {
			return err
		}
		if err := w.store.IncrementJobFailed(ctx, jobID); err != nil {
			return err
		}
	}
	if len(items) > 0 {
		w.log.Warn("Failed %d unreachable items in job '%s'", len(items), jobID)
	}
	return nil
}

// finalize settles the job once no claimable item remains. Only a job
// still RUNNING transitions; a pause or cancel that won the race keeps
// its state.
func (w *Worker) finalize(ctx context.Context, jobID string, mode models.TransferMode) error {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobRunning {
		return nil
	}

	final := models.JobCompleted
	if job.FailedItems > 0 {
		final = models.JobFailed
	}
	if err := w.store.FinishJob(ctx, jobID, final); err != nil {
		return err
	}
	w.appendEvent(ctx, jobID, models.EventJobFinished,
		fmt.Sprintf("Transfer finished with status %s (%d/%d items, %d failed)",
			final, job.CompletedItems, job.TotalItems, job.FailedItems))
	w.publishProgress(ctx, jobID, "")

	// A completed move hands the tree to verification before any source
	// object is touched.
	if mode == models.ModeMove && final == models.JobCompleted {
		if err := w.enq.EnqueueVerification(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) publishProgress(ctx context.Context, jobID, currentFile string) {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		w.log.Warn("Failed to load job '%s' for progress publish: %v", jobID, err)
		return
	}
	w.notifier.Publish(ctx, coord.Progress{
		JobID:           jobID,
		CurrentFileName: currentFile,
		CompletedCount:  job.CompletedItems,
		TotalCount:      job.TotalItems,
		Status:          string(job.Status),
	})
}

func (w *Worker) appendEvent(ctx context.Context, jobID, eventType, message string) {
	if err := w.store.AppendEvent(ctx, jobID, eventType, message); err != nil {
		w.log.Warn("Failed to append event '%s' for job '%s': %v", eventType, jobID, err)
	}
}
