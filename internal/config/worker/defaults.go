package worker

import "github.com/spf13/viper"

func GetWorkerDefault() BaseWorkerConfig {
	return BaseWorkerConfig{
		ShutdownTimeout: "30s",

		Log: LogWorkerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogWorkerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataWorkerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path: "gdrivebridge.db",
			},
		},

		Redis: RedisWorkerConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},

		Queue: QueueWorkerConfig{
			Concurrency:      4,
			TransferAttempts: 5,
			RetryBaseDelay:   "2s",
		},

		Drive: DriveWorkerConfig{},

		Transfer: TransferWorkerConfig{
			RateIntervalMS:   400, // 2.5 writes/sec
			LockTTL:          "1h",
			DailyByteCap:     700 << 30, // 700 GiB
			MaxDepth:         1000,
			PageSize:         1000,
			RetryLimit:       5,
			RetryBaseDelay:   "1s",
			DeleteDelay:      "5s",
			QuotaResumeDelay: "24h",
			ItemWarnLimit:    480_000,
			ItemBlockLimit:   495_000,
			ProgressChannel:  "transfer:progress",
		},
	}
}

func setDefaults() {
	defaults := GetWorkerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)

	viper.SetDefault("redis.addr", defaults.Redis.Addr)
	viper.SetDefault("redis.password", defaults.Redis.Password)
	viper.SetDefault("redis.db", defaults.Redis.DB)

	viper.SetDefault("queue.concurrency", defaults.Queue.Concurrency)
	viper.SetDefault("queue.transfer_attempts", defaults.Queue.TransferAttempts)
	viper.SetDefault("queue.retry_base_delay", defaults.Queue.RetryBaseDelay)

	viper.SetDefault("transfer.rate_interval_ms", defaults.Transfer.RateIntervalMS)
	viper.SetDefault("transfer.lock_ttl", defaults.Transfer.LockTTL)
	viper.SetDefault("transfer.daily_byte_cap", defaults.Transfer.DailyByteCap)
	viper.SetDefault("transfer.max_depth", defaults.Transfer.MaxDepth)
	viper.SetDefault("transfer.page_size", defaults.Transfer.PageSize)
	viper.SetDefault("transfer.retry_limit", defaults.Transfer.RetryLimit)
	viper.SetDefault("transfer.retry_base_delay", defaults.Transfer.RetryBaseDelay)
	viper.SetDefault("transfer.delete_delay", defaults.Transfer.DeleteDelay)
	viper.SetDefault("transfer.quota_resume_delay", defaults.Transfer.QuotaResumeDelay)
	viper.SetDefault("transfer.item_warn_limit", defaults.Transfer.ItemWarnLimit)
	viper.SetDefault("transfer.item_block_limit", defaults.Transfer.ItemBlockLimit)
	viper.SetDefault("transfer.progress_channel", defaults.Transfer.ProgressChannel)
}
