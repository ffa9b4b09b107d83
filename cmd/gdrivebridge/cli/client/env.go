package client

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	config "github.com/NiksRock/GDriveBridge/internal/config/worker"
	"github.com/NiksRock/GDriveBridge/internal/crypto"
	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/internal/queue"
	"github.com/NiksRock/GDriveBridge/internal/transfer"
	"github.com/NiksRock/GDriveBridge/pkg/db/migrations"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
	"github.com/NiksRock/GDriveBridge/pkg/db/store"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// env bundles the admin-command dependencies: the shared store, the queue
// producer and the admission service. Commands run in-process against the
// same database and Redis instance the agent uses.
type env struct {
	cfg     *config.BaseWorkerConfig
	log     log.LoggerService
	store   *store.SQLiteStore
	cipher  *crypto.Cipher
	enq     *queue.Enqueuer
	service *transfer.Service
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load worker configuration: %w", err)
	}

	logger := log.NewLoggerService("cli", cfg.Log)

	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: cfg.Metadata.SQLite.Path})
	if err != nil {
		return nil, err
	}
	if err := st.Connect(ctx); err != nil {
		return nil, err
	}
	if err := migrations.NewMigrator(st.DB()).Migrate(ctx); err != nil {
		return nil, err
	}

	cipher, err := crypto.NewCipher(cfg.Transfer.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer encryption key: %w", err)
	}

	oauth := drive.OAuthConfig{
		ClientID:     cfg.Drive.ClientID,
		ClientSecret: cfg.Drive.ClientSecret,
		RedirectURL:  cfg.Drive.RedirectURL,
	}
	pageSize := cfg.Transfer.PageSize
	clientFunc := func(ctx context.Context, account *models.Account) (drive.Client, error) {
		token, err := cipher.Decrypt(account.RefreshTokenEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential for account '%s': %w", account.ID, err)
		}
		return drive.NewGoogleClient(ctx, oauth, token, pageSize)
	}

	enq := queue.NewEnqueuer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	scanner := transfer.NewScanner(transfer.ScannerConfig{
		ItemWarnLimit:  cfg.Transfer.ItemWarnLimit,
		ItemBlockLimit: cfg.Transfer.ItemBlockLimit,
		DailyByteCap:   cfg.Transfer.DailyByteCap,
		MaxDepth:       cfg.Transfer.MaxDepth,
	}, logger)
	expander := transfer.NewExpander(st, logger, cfg.Transfer.MaxDepth)
	service := transfer.NewService(st, expander, scanner, enq, clientFunc, logger)

	return &env{
		cfg:     cfg,
		log:     logger,
		store:   st,
		cipher:  cipher,
		enq:     enq,
		service: service,
	}, nil
}

func (e *env) close() {
	if err := e.enq.Close(); err != nil {
		e.log.Warn("Failed to close queue client: %v", err)
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn("Failed to close transfer store: %v", err)
	}
}

// redisClient is used by commands that watch the progress channel.
func (e *env) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr,
		Password: e.cfg.Redis.Password,
		DB:       e.cfg.Redis.DB,
	})
}
