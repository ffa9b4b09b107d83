package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// CreateTransferRequest is one user-initiated migration request.
type CreateTransferRequest struct {
	UserID               string              `json:"userId"`
	SourceAccountID      string              `json:"sourceAccountId"`
	DestinationAccountID string              `json:"destinationAccountId"`
	DestinationFolderID  string              `json:"destinationFolderId"`
	Mode                 models.TransferMode `json:"mode"`
	RootFileIDs          []string            `json:"rootFileIds"`
}

// Service is the job admission and control surface. Validation failures
// surface before any job record exists; a created job is always fully
// expanded (or FAILED) before it is enqueued.
type Service struct {
	store      store.TransferStore
	expander   *Expander
	scanner    *Scanner
	enq        Enqueuer
	clientFunc ClientFunc
	log        log.LoggerService
}

func NewService(st store.TransferStore, expander *Expander, scanner *Scanner, enq Enqueuer, clientFunc ClientFunc, logger log.LoggerService) *Service {
	return &Service{
		store:      st,
		expander:   expander,
		scanner:    scanner,
		enq:        enq,
		clientFunc: clientFunc,
		log:        logger.Named("service"),
	}
}

// CreateTransfer validates the request, pre-scans the selection, creates
// the job, expands the source tree and enqueues the first delivery.
// Returns the created job, or ErrValidation without a job on any
// admission failure.
func (s *Service) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*models.Job, error) {
	source, dest, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	srcClient, err := s.clientFunc(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to build source client: %w", err)
	}
	destClient, err := s.clientFunc(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to build destination client: %w", err)
	}

	scan, err := s.scanner.Scan(ctx, srcClient, req.RootFileIDs)
	if err != nil {
		return nil, fmt.Errorf("pre-scan failed: %w", err)
	}
	if !scan.CanStart {
		return nil, fmt.Errorf("%w: %s", ErrValidation, scan.Warnings[len(scan.Warnings)-1])
	}

	// Destination folder must exist and be reachable with the
	// destination credential before anything is persisted
	if _, err := destClient.GetMetadata(ctx, req.DestinationFolderID); err != nil {
		return nil, fmt.Errorf("%w: destination folder not accessible: %v", ErrValidation, err)
	}

	// The provider caps how many direct children one folder may hold;
	// each root lands at the top of the destination folder
	destWarnings, canInsert, err := s.scanner.CheckDestination(ctx, destClient, req.DestinationFolderID, int64(len(req.RootFileIDs)))
	if err != nil {
		return nil, err
	}
	if !canInsert {
		return nil, fmt.Errorf("%w: %s", ErrValidation, destWarnings[0])
	}
	scan.Warnings = append(scan.Warnings, destWarnings...)

	job := &models.Job{
		ID:                   uuid.NewString(),
		UserID:               req.UserID,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		DestinationFolderID:  req.DestinationFolderID,
		Mode:                 req.Mode,
		Status:               models.JobPending,
		RiskFlags:            scan.RiskFlags,
		Warnings:             scan.Warnings,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.appendEvent(ctx, job.ID, models.EventCreated,
		fmt.Sprintf("Transfer created (%s, %d roots)", job.Mode, len(req.RootFileIDs)))

	totalItems, totalBytes, err := s.expander.ExpandAndPersist(ctx, job.ID, srcClient, req.RootFileIDs)
	if err != nil {
		s.log.Error("Expansion failed for job '%s': %v", job.ID, err)
		s.appendEvent(ctx, job.ID, models.EventExpansionFailed, err.Error())
		if failErr := s.store.FailJob(ctx, job.ID); failErr != nil {
			s.log.Error("Failed to mark job '%s' failed: %v", job.ID, failErr)
		}
		return nil, fmt.Errorf("expansion failed: %w", err)
	}

	if err := s.store.SetJobTotals(ctx, job.ID, totalItems, totalBytes); err != nil {
		return nil, err
	}
	job.TotalItems = totalItems
	job.TotalBytes = totalBytes
	s.appendEvent(ctx, job.ID, models.EventExpansionCompleted,
		fmt.Sprintf("Expansion completed: %d items, %d bytes", totalItems, totalBytes))

	if err := s.enq.EnqueueTransfer(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue job '%s': %w", job.ID, err)
	}

	s.log.Info("Created transfer '%s' (%s): %d items, %d bytes", job.ID, job.Mode, totalItems, totalBytes)
	return job, nil
}

// Scan pre-scans a selection for a connected account without creating a
// job. Used by the admin surface to preview totals and risk flags.
func (s *Service) Scan(ctx context.Context, userID, accountID string, rootIDs []string) (*ScanResult, error) {
	if len(rootIDs) == 0 {
		return nil, fmt.Errorf("%w: no source items selected", ErrValidation)
	}

	account, err := s.store.GetUserAccount(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account not connected for this user", ErrValidation)
		}
		return nil, err
	}

	client, err := s.clientFunc(ctx, account)
	if err != nil {
		return nil, err
	}
	return s.scanner.Scan(ctx, client, rootIDs)
}

func (s *Service) validate(ctx context.Context, req CreateTransferRequest) (*models.Account, *models.Account, error) {
	if len(req.RootFileIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: no source items selected", ErrValidation)
	}
	if req.Mode != models.ModeCopy && req.Mode != models.ModeMove {
		return nil, nil, fmt.Errorf("%w: unknown mode '%s'", ErrValidation, req.Mode)
	}
	if req.DestinationFolderID == "" {
		return nil, nil, fmt.Errorf("%w: destination folder is required", ErrValidation)
	}
	if req.SourceAccountID == req.DestinationAccountID {
		return nil, nil, fmt.Errorf("%w: source and destination accounts must differ", ErrValidation)
	}

	source, err := s.store.GetUserAccount(ctx, req.UserID, req.SourceAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: source account not connected for this user", ErrValidation)
		}
		return nil, nil, err
	}
	dest, err := s.store.GetUserAccount(ctx, req.UserID, req.DestinationAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: destination account not connected for this user", ErrValidation)
		}
		return nil, nil, err
	}
	return source, dest, nil
}

// PauseTransfer requests a user pause. The worker observes it at its next
// freshness check; in-flight remote calls are never interrupted.
func (s *Service) PauseTransfer(ctx context.Context, userID, jobID string) error {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobRunning && job.Status != models.JobPending {
		return fmt.Errorf("%w: job is %s, nothing to pause", ErrValidation, job.Status)
	}
	return s.store.PauseJob(ctx, jobID)
}

// ResumeTransfer clears a user or quota pause and re-enqueues the job.
func (s *Service) ResumeTransfer(ctx context.Context, userID, jobID string) error {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobPaused && job.Status != models.JobAutoPausedQuota {
		return fmt.Errorf("%w: job is %s, nothing to resume", ErrValidation, job.Status)
	}

	transitioned, err := s.store.ResumeJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}
	return s.enq.EnqueueTransfer(ctx, jobID)
}

// CancelTransfer is terminal: the worker stops at its next checkpoint and
// verification/deletion refuse to proceed.
func (s *Service) CancelTransfer(ctx context.Context, userID, jobID string) error {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job already %s", ErrValidation, job.Status)
	}
	return s.store.CancelJob(ctx, jobID)
}

// TransferStatus returns the job with its items and audit trail.
func (s *Service) TransferStatus(ctx context.Context, userID, jobID string) (*models.Job, []models.Event, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return nil, nil, err
	}
	job, err := s.store.GetJobWithItems(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.ListEvents(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, events, nil
}

// ListTransfers returns the user's jobs, newest first.
func (s *Service) ListTransfers(ctx context.Context, userID string) ([]models.Job, error) {
	return s.store.ListJobs(ctx, userID)
}

func (s *Service) ownedJob(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown job '%s'", ErrValidation, jobID)
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("%w: unknown job '%s'", ErrValidation, jobID)
	}
	return job, nil
}

func (s *Service) appendEvent(ctx context.Context, jobID, eventType, message string) {
	if err := s.store.AppendEvent(ctx, jobID, eventType, message); err != nil {
		s.log.Warn("Failed to append event '%s' for job '%s': %v", eventType, jobID, err)
	}
}
