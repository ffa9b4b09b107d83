package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mwantia/fabric/pkg/container"
	"github.com/redis/go-redis/v9"

	config "github.com/NiksRock/GDriveBridge/internal/config/worker"
	"github.com/NiksRock/GDriveBridge/internal/coord"
	"github.com/NiksRock/GDriveBridge/internal/crypto"
	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/internal/queue"
	"github.com/NiksRock/GDriveBridge/internal/transfer"
	"github.com/NiksRock/GDriveBridge/pkg/db/migrations"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// BridgeAgent owns the worker process: the transfer store, the Redis
// coordination clients, the queue consumer and the pipeline stages. It
// runs until interrupted, then drains in-flight jobs within the
// configured shutdown window.
type BridgeAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseWorkerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	store    store.TransferStore
	rdb      *redis.Client
	enqueuer *queue.Enqueuer
	srv      *asynq.Server
}

func NewAgent(cfg *config.BaseWorkerConfig) *BridgeAgent {
	return &BridgeAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: log.NewLoggerService("agent", cfg.Log),
	}
}

func (ba *BridgeAgent) setupStore(ctx context.Context) error {
	if ba.cfg.Metadata.Type != "sqlite" {
		return fmt.Errorf("unsupported metadata store type '%s'", ba.cfg.Metadata.Type)
	}

	st, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path: ba.cfg.Metadata.SQLite.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to create transfer store: %w", err)
	}
	if err := st.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transfer store: %w", err)
	}

	migrator := migrations.NewMigrator(st.DB())
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ba.store = st
	return nil
}

func (ba *BridgeAgent) setupRedis(ctx context.Context) error {
	ba.rdb = redis.NewClient(&redis.Options{
		Addr:     ba.cfg.Redis.Addr,
		Password: ba.cfg.Redis.Password,
		DB:       ba.cfg.Redis.DB,
	})
	if err := ba.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at '%s': %w", ba.cfg.Redis.Addr, err)
	}
	return nil
}

// setupServices registers the long-lived services with the container so
// shutdown runs their cleanup in reverse registration order.
func (ba *BridgeAgent) setupServices() error {
	errs := container.Errors{}

	ba.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](ba.sc,
		container.With[log.LoggerService](),
		container.WithInstance(ba.log)))

	return errs.Errors()
}

func (ba *BridgeAgent) buildPipeline() (*asynq.ServeMux, error) {
	tc := ba.cfg.Transfer

	cipher, err := crypto.NewCipher(tc.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer encryption key: %w", err)
	}

	oauth := drive.OAuthConfig{
		ClientID:     ba.cfg.Drive.ClientID,
		ClientSecret: ba.cfg.Drive.ClientSecret,
		RedirectURL:  ba.cfg.Drive.RedirectURL,
	}
	pageSize := tc.PageSize
	clientFunc := func(ctx context.Context, account *models.Account) (drive.Client, error) {
		token, err := cipher.Decrypt(account.RefreshTokenEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential for account '%s': %w", account.ID, err)
		}
		return drive.NewGoogleClient(ctx, oauth, token, pageSize)
	}

	lockTTL := parseDurationOr(tc.LockTTL, time.Hour)
	retryBase := parseDurationOr(tc.RetryBaseDelay, time.Second)
	deleteDelay := parseDurationOr(tc.DeleteDelay, 5*time.Second)
	resumeDelay := parseDurationOr(tc.QuotaResumeDelay, 24*time.Hour)

	governor := coord.NewRateGovernor(ba.rdb, time.Duration(tc.RateIntervalMS)*time.Millisecond, ba.log)
	locker := coord.NewAccountLock(ba.rdb, lockTTL)
	notifier := coord.NewRedisNotifier(ba.rdb, tc.ProgressChannel, ba.log)

	copierCfg := transfer.CopierConfig{
		RetryLimit:       tc.RetryLimit,
		RetryBaseDelay:   retryBase,
		DailyByteCap:     tc.DailyByteCap,
		QuotaResumeDelay: resumeDelay,
	}

	worker := transfer.NewWorker(ba.store, governor, locker, notifier, ba.enqueuer, clientFunc,
		transfer.WorkerConfig{RetryLimit: tc.RetryLimit, Copier: copierCfg}, ba.log)
	verifier := transfer.NewVerifier(ba.store, ba.enqueuer, clientFunc, deleteDelay, ba.log)
	deleter := transfer.NewDeleter(ba.store, governor, clientFunc, ba.log)
	resumer := transfer.NewQuotaResumer(ba.store, ba.enqueuer, ba.log)

	return queue.NewMux(queue.Handlers{
		Worker:   worker,
		Verifier: verifier,
		Deleter:  deleter,
		Resumer:  resumer,
	}), nil
}

// Serve runs the agent until the context is cancelled or an interrupt
// arrives, then drains within the shutdown timeout.
func (ba *BridgeAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ba.mutex.Lock()

	if err := ba.setupServices(); err != nil {
		ba.mutex.Unlock()
		return err
	}
	if err := ba.setupStore(ctx); err != nil {
		ba.mutex.Unlock()
		return err
	}
	if err := ba.setupRedis(ctx); err != nil {
		ba.mutex.Unlock()
		return err
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     ba.cfg.Redis.Addr,
		Password: ba.cfg.Redis.Password,
		DB:       ba.cfg.Redis.DB,
	}
	ba.enqueuer = queue.NewEnqueuer(redisOpt)

	mux, err := ba.buildPipeline()
	if err != nil {
		ba.mutex.Unlock()
		return err
	}

	ba.srv = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    ba.cfg.Queue.Concurrency,
		Queues:         queue.Priorities(),
		RetryDelayFunc: queue.RetryDelay,
	})
	if err := ba.srv.Start(mux); err != nil {
		ba.mutex.Unlock()
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	ba.log.Info("Agent serving (concurrency %d, redis %s)", ba.cfg.Queue.Concurrency, ba.cfg.Redis.Addr)
	ba.mutex.Unlock()
	<-ctx.Done()

	timeout, err := time.ParseDuration(ba.cfg.ShutdownTimeout)
	if err != nil {
		timeout = 60 * time.Second
	}

	shutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ba.srv.Shutdown()

	if err := ba.enqueuer.Close(); err != nil {
		ba.log.Warn("Failed to close queue client: %v", err)
	}
	if err := ba.rdb.Close(); err != nil {
		ba.log.Warn("Failed to close redis client: %v", err)
	}
	if err := ba.store.Close(); err != nil {
		ba.log.Warn("Failed to close transfer store: %v", err)
	}

	if err := ba.sc.Cleanup(shutdown); err != nil {
		return fmt.Errorf("failed to complete service container cleanup: %w", err)
	}

	ba.wait.Wait()
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
