package worker

// QueueWorkerConfig tunes the durable job queue consumer.
type QueueWorkerConfig struct {
	// Concurrency bounds how many distinct jobs one worker instance
	// may execute simultaneously. Item processing within a job is
	// always sequential.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// TransferAttempts is the redelivery budget for job-level retryable
	// failures such as lock contention.
	TransferAttempts int `mapstructure:"transfer_attempts" yaml:"transfer_attempts"`

	// RetryBaseDelay seeds the exponential redelivery backoff.
	RetryBaseDelay string `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
}
