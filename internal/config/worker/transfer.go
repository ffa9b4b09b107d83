package worker

// TransferWorkerConfig carries the pipeline tuning knobs. The defaults
// encode the provider limits: 2.5 writes/sec/account and a 750 GB daily
// upload allowance, capped here at 700 GiB for safety headroom.
type TransferWorkerConfig struct {
	// EncryptionKey is the base64-encoded 32-byte AES key protecting
	// stored refresh tokens.
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`

	// RateIntervalMS is the minimum gap between writes per account,
	// enforced cluster-wide through the coordination service.
	RateIntervalMS int `mapstructure:"rate_interval_ms" yaml:"rate_interval_ms"`

	// LockTTL is the account lease duration; extended while a job is
	// actively processing items.
	LockTTL string `mapstructure:"lock_ttl" yaml:"lock_ttl"`

	DailyByteCap int64 `mapstructure:"daily_byte_cap" yaml:"daily_byte_cap"`

	MaxDepth int   `mapstructure:"max_depth" yaml:"max_depth"`
	PageSize int64 `mapstructure:"page_size" yaml:"page_size"`

	// RetryLimit bounds per-item attempts on retryable remote errors.
	RetryLimit     int    `mapstructure:"retry_limit"      yaml:"retry_limit"`
	RetryBaseDelay string `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`

	// DeleteDelay is the safety window before each verified source delete.
	DeleteDelay string `mapstructure:"delete_delay" yaml:"delete_delay"`

	// QuotaResumeDelay is the cooldown before a quota-paused job is
	// automatically re-activated.
	QuotaResumeDelay string `mapstructure:"quota_resume_delay" yaml:"quota_resume_delay"`

	// Item-count safety thresholds against the provider's 500k folder
	// item limit: warn at the first, refuse to start at the second.
	ItemWarnLimit  int64 `mapstructure:"item_warn_limit"  yaml:"item_warn_limit"`
	ItemBlockLimit int64 `mapstructure:"item_block_limit" yaml:"item_block_limit"`

	// ProgressChannel is the pub/sub channel progress events are
	// published on for the realtime gateway.
	ProgressChannel string `mapstructure:"progress_channel" yaml:"progress_channel"`
}
