package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
)

// SQLiteStore implements TransferStore using SQLite
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	LogLevel     logger.LogLevel
}

// NewSQLiteStore creates a new SQLite-backed transfer store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Account{},
		&models.Job{},
		&models.Item{},
		&models.Event{},
	)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Account operations

func (s *SQLiteStore) CreateAccount(ctx context.Context, account *models.Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &account, nil
}

func (s *SQLiteStore) GetUserAccount(ctx context.Context, userID, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&account).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &account, nil
}

// AddDailyBytes performs the quota-gated increment as one conditional UPDATE.
// Two workers racing on the same account can never both pass a stale check
// because the guard and the increment are the same statement.
func (s *SQLiteStore) AddDailyBytes(ctx context.Context, accountID string, delta, cap int64) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND daily_bytes_transferred + ? <= ?", accountID, delta, cap).
		UpdateColumn("daily_bytes_transferred", gorm.Expr("daily_bytes_transferred + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *SQLiteStore) ResetDailyBytesIfStale(ctx context.Context, accountID string, dayStart time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND last_quota_reset < ?", accountID, dayStart).
		UpdateColumns(map[string]any{
			"daily_bytes_transferred": 0,
			"last_quota_reset":        time.Now().UTC(),
		}).Error
}

// Job operations

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &job, nil
}

func (s *SQLiteStore) GetJobWithItems(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("depth ASC, created_at ASC")
		}).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &job, nil
}

// JobStatus reads the live status only. The worker loop calls this before
// every item as its freshness check.
func (s *SQLiteStore) JobStatus(ctx context.Context, id string) (models.JobStatus, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Select("status").
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return "", wrapNotFound(err)
	}
	return job.Status, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, userID string) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (s *SQLiteStore) SetJobTotals(ctx context.Context, id string, totalItems, totalBytes int64) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_items": totalItems,
			"total_bytes": totalBytes,
		}).Error
}

// MarkJobRunning moves a PENDING job to RUNNING. StartedAt is stamped only
// on the first transition; a resume keeps the original timestamp.
func (s *SQLiteStore) MarkJobRunning(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobPending).
		UpdateColumns(map[string]any{
			"status":     models.JobRunning,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", time.Now().UTC()),
		}).Error
}

func (s *SQLiteStore) PauseJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPending, models.JobRunning}).
		UpdateColumns(map[string]any{
			"status":    models.JobPaused,
			"paused_at": time.Now().UTC(),
		}).Error
}

// PauseJobForQuota flips a RUNNING job to AUTO_PAUSED_QUOTA. The returned
// bool reports whether this call performed the transition, so the caller
// schedules exactly one delayed resume no matter how many items hit the
// quota wall concurrently.
func (s *SQLiteStore) PauseJobForQuota(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobRunning).
		UpdateColumns(map[string]any{
			"status":    models.JobAutoPausedQuota,
			"paused_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) ResumeJob(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPaused, models.JobAutoPausedQuota}).
		UpdateColumns(map[string]any{
			"status":    models.JobPending,
			"paused_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) CancelJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{
			models.JobPending, models.JobRunning, models.JobPaused, models.JobAutoPausedQuota,
		}).
		UpdateColumns(map[string]any{
			"status":      models.JobCancelled,
			"finished_at": time.Now().UTC(),
		}).Error
}

// FinishJob stamps the terminal status, guarded on the job still RUNNING so
// a cancellation racing in during the final pass wins.
func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status models.JobStatus) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobRunning).
		UpdateColumns(map[string]any{
			"status":      status,
			"finished_at": time.Now().UTC(),
		}).Error
}

// FailJob marks a job FAILED from any non-terminal state. Used when
// expansion aborts before the worker loop ever ran.
func (s *SQLiteStore) FailJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{
			models.JobPending, models.JobRunning, models.JobPaused, models.JobAutoPausedQuota,
		}).
		UpdateColumns(map[string]any{
			"status":      models.JobFailed,
			"finished_at": time.Now().UTC(),
		}).Error
}

func (s *SQLiteStore) IncrementJobProgress(ctx context.Context, id string, bytes int64) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"completed_items":   gorm.Expr("completed_items + 1"),
			"transferred_bytes": gorm.Expr("transferred_bytes + ?", bytes),
		}).Error
}

func (s *SQLiteStore) IncrementJobFailed(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumn("failed_items", gorm.Expr("failed_items + 1")).Error
}

// Item operations

// UpsertItem creates the item if absent, keyed on (job_id, source_file_id).
// An existing row is never overwritten, which keeps expansion idempotent.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item *models.Item) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "source_file_id"}},
			DoNothing: true,
		}).
		Create(item).Error
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &item, nil
}

func (s *SQLiteStore) GetItemBySource(ctx context.Context, jobID, sourceFileID string) (*models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND source_file_id = ?", jobID, sourceFileID).
		First(&item).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &item, nil
}

func (s *SQLiteStore) CountItems(ctx context.Context, jobID string) (int64, int64, error) {
	var result struct {
		TotalItems int64
		TotalBytes int64
	}
	err := s.db.WithContext(ctx).Model(&models.Item{}).
		Select("COUNT(*) AS total_items, COALESCE(SUM(size_bytes), 0) AS total_bytes").
		Where("job_id = ?", jobID).
		Scan(&result).Error
	if err != nil {
		return 0, 0, err
	}
	return result.TotalItems, result.TotalBytes, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, jobID string) ([]models.Item, error) {
	var items []models.Item
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("depth ASC, created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListClaimableItems returns the items a worker pass should attempt, in
// depth-then-creation order so folders precede their children. RUNNING items
// are included: a crash can leave an item RUNNING, and re-attempting it is
// safe because the copy path is idempotent.
func (s *SQLiteStore) ListClaimableItems(ctx context.Context, jobID string) ([]models.Item, error) {
	var items []models.Item
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status IN ?", jobID, []models.ItemStatus{models.ItemPending, models.ItemRunning}).
		Order("depth ASC, created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (s *SQLiteStore) SetItemRunning(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", id).
		UpdateColumn("status", models.ItemRunning).Error
}

func (s *SQLiteStore) CompleteItem(ctx context.Context, id, destinationFileID string) error {
	return s.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":              models.ItemCompleted,
			"destination_file_id": destinationFileID,
			"error_message":       "",
		}).Error
}

func (s *SQLiteStore) FailItem(ctx context.Context, id, message string) error {
	return s.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":        models.ItemFailed,
			"error_message": message,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

// ResetItemPending returns an item to PENDING for a later pass. countAttempt
// controls whether the retry budget is charged; parent-not-ready and quota
// pauses are not charged.
func (s *SQLiteStore) ResetItemPending(ctx context.Context, id, message string, countAttempt bool) error {
	columns := map[string]any{
		"status":        models.ItemPending,
		"error_message": message,
	}
	if countAttempt {
		columns["retry_count"] = gorm.Expr("retry_count + 1")
	}
	return s.db.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", id).
		UpdateColumns(columns).Error
}

// Audit events

func (s *SQLiteStore) AppendEvent(ctx context.Context, jobID, eventType, message string) error {
	return s.db.WithContext(ctx).Create(&models.Event{
		JobID:   jobID,
		Type:    eventType,
		Message: message,
	}).Error
}

func (s *SQLiteStore) ListEvents(ctx context.Context, jobID string) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
