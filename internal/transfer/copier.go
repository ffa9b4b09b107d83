package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// CopierConfig tunes the exactly-once engine.
type CopierConfig struct {
	RetryLimit       int
	RetryBaseDelay   time.Duration
	DailyByteCap     int64
	QuotaResumeDelay time.Duration
}

func (c *CopierConfig) defaults() {
	if c.RetryLimit <= 0 {
		c.RetryLimit = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.DailyByteCap <= 0 {
		c.DailyByteCap = 700 << 30
	}
	if c.QuotaResumeDelay <= 0 {
		c.QuotaResumeDelay = 24 * time.Hour
	}
}

// Copier ensures each item exists at the destination exactly once, bound
// to one job's destination account and client. Order of defense:
// local record, remote provenance lookup, then a throttled create.
type Copier struct {
	store         store.TransferStore
	governor      Governor
	enq           Enqueuer
	dest          drive.Client
	destAccountID string
	cfg           CopierConfig
	log           log.LoggerService
}

func NewCopier(st store.TransferStore, governor Governor, enq Enqueuer, dest drive.Client, destAccountID string, cfg CopierConfig, logger log.LoggerService) *Copier {
	cfg.defaults()
	return &Copier{
		store:         st,
		governor:      governor,
		enq:           enq,
		dest:          dest,
		destAccountID: destAccountID,
		cfg:           cfg,
		log:           logger,
	}
}

// CopyExactlyOnce copies one file item, safe to re-attempt any number of
// times without producing a duplicate destination object.
func (c *Copier) CopyExactlyOnce(ctx context.Context, itemID, sourceFileID, destFolderID, fileName string, size int64) (string, error) {
	// 1. Local record short-circuit (crash-resume)
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to load item '%s': %w", itemID, err)
	}
	if item.DestinationFileID != nil && *item.DestinationFileID != "" {
		return *item.DestinationFileID, nil
	}

	// 2. Remote provenance verification: adopt a copy that landed before
	// a crash wiped the local record
	found, err := c.dest.FindOwned(ctx, fileName, destFolderID)
	if err != nil {
		return "", err
	}
	if found != nil {
		if found.Size == size {
			if err := c.store.CompleteItem(ctx, itemID, found.ID); err != nil {
				return "", err
			}
			c.appendEvent(ctx, item.JobID, models.EventCopyRecovered,
				fmt.Sprintf("Adopted existing destination object %s for %s", found.ID, fileName))
			return found.ID, nil
		}

		// Size mismatch means a corrupt fragment; remove it and recopy
		c.log.Warn("Deleting corrupt fragment '%s' (size %d, want %d)", found.ID, found.Size, size)
		if err := c.throttledDelete(ctx, found.ID); err != nil {
			return "", err
		}
	}

	// 3. Throttled copy with bounded retries
	newID, err := c.withRetry(ctx, func() (string, error) {
		if err := c.governor.Throttle(ctx, c.destAccountID); err != nil {
			return "", err
		}
		return c.dest.Copy(ctx, sourceFileID, fileName, destFolderID)
	})
	if err != nil {
		if drive.IsQuotaExceeded(err) {
			c.pauseForQuota(ctx, item.JobID)
		}
		return "", err
	}

	// Charge the daily byte quota in one conditional statement. Failing
	// the gate pauses the job rather than consuming the retry budget.
	if err := c.chargeQuota(ctx, item.JobID, size); err != nil {
		return "", err
	}

	// 4. Persist the result before anything depends on it
	if err := c.store.CompleteItem(ctx, itemID, newID); err != nil {
		return "", err
	}
	return newID, nil
}

// CreateFolderExactlyOnce mirrors the copy path for folders: local record,
// provenance adoption, throttled create. Folders carry no byte quota.
func (c *Copier) CreateFolderExactlyOnce(ctx context.Context, itemID, folderName, destParentID string) (string, error) {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to load item '%s': %w", itemID, err)
	}
	if item.DestinationFileID != nil && *item.DestinationFileID != "" {
		return *item.DestinationFileID, nil
	}

	found, err := c.dest.FindOwned(ctx, folderName, destParentID)
	if err != nil {
		return "", err
	}
	if found != nil && found.IsFolder() {
		if err := c.store.CompleteItem(ctx, itemID, found.ID); err != nil {
			return "", err
		}
		c.appendEvent(ctx, item.JobID, models.EventCopyRecovered,
			fmt.Sprintf("Adopted existing destination folder %s for %s", found.ID, folderName))
		return found.ID, nil
	}

	newID, err := c.withRetry(ctx, func() (string, error) {
		if err := c.governor.Throttle(ctx, c.destAccountID); err != nil {
			return "", err
		}
		return c.dest.CreateFolder(ctx, folderName, destParentID)
	})
	if err != nil {
		if drive.IsQuotaExceeded(err) {
			c.pauseForQuota(ctx, item.JobID)
		}
		return "", err
	}

	if err := c.store.CompleteItem(ctx, itemID, newID); err != nil {
		return "", err
	}
	return newID, nil
}

// chargeQuota resets the counter on local-day rollover, then attempts the
// conditional increment. A failed gate flips the job to AUTO_PAUSED_QUOTA.
func (c *Copier) chargeQuota(ctx context.Context, jobID string, size int64) error {
	if size <= 0 {
		return nil
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := c.store.ResetDailyBytesIfStale(ctx, c.destAccountID, dayStart.UTC()); err != nil {
		return err
	}

	err := c.store.AddDailyBytes(ctx, c.destAccountID, size, c.cfg.DailyByteCap)
	if err == store.ErrQuotaExceeded {
		c.pauseForQuota(ctx, jobID)
		return drive.NewError(drive.KindQuotaExceeded, "quota", err)
	}
	return err
}

// pauseForQuota performs the quota pause transition. Only the call that
// actually flips the status schedules the delayed resume, so repeated
// attempts against an already-paused job never stack resume tasks.
func (c *Copier) pauseForQuota(ctx context.Context, jobID string) {
	transitioned, err := c.store.PauseJobForQuota(ctx, jobID)
	if err != nil {
		c.log.Error("Failed to pause job '%s' for quota: %v", jobID, err)
		return
	}
	if !transitioned {
		return
	}

	c.appendEvent(ctx, jobID, models.EventQuotaPaused, "Daily byte quota reached; transfer auto-paused")
	c.log.Warn("Job '%s' auto-paused for quota, resume in %s", jobID, c.cfg.QuotaResumeDelay)

	if err := c.enq.EnqueueQuotaResume(ctx, jobID, c.cfg.QuotaResumeDelay); err != nil {
		c.log.Error("Failed to schedule quota resume for job '%s': %v", jobID, err)
	}
}

func (c *Copier) throttledDelete(ctx context.Context, fileID string) error {
	_, err := c.withRetry(ctx, func() (string, error) {
		if err := c.governor.Throttle(ctx, c.destAccountID); err != nil {
			return "", err
		}
		return "", c.dest.Delete(ctx, fileID)
	})
	return err
}

// withRetry re-attempts retryable remote errors with exponential backoff.
// Non-retryable errors (including quota) propagate immediately.
func (c *Copier) withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	delay := c.cfg.RetryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryLimit; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !drive.IsRetryable(err) {
			return "", err
		}
		lastErr = err

		if attempt == c.cfg.RetryLimit {
			break
		}

		c.log.Debug("Retryable remote error (attempt %d/%d): %v", attempt, c.cfg.RetryLimit, err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", lastErr
}

func (c *Copier) appendEvent(ctx context.Context, jobID, eventType, message string) {
	if err := c.store.AppendEvent(ctx, jobID, eventType, message); err != nil {
		c.log.Warn("Failed to append event '%s' for job '%s': %v", eventType, jobID, err)
	}
}
