package worker

import (
	"fmt"

	"github.com/spf13/viper"
)

type BaseWorkerConfig struct {
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log      LogWorkerConfig      `mapstructure:"log"      yaml:"log"`
	Metadata MetadataWorkerConfig `mapstructure:"metadata" yaml:"metadata"`
	Redis    RedisWorkerConfig    `mapstructure:"redis"    yaml:"redis"`
	Queue    QueueWorkerConfig    `mapstructure:"queue"    yaml:"queue"`
	Drive    DriveWorkerConfig    `mapstructure:"drive"    yaml:"drive"`
	Transfer TransferWorkerConfig `mapstructure:"transfer" yaml:"transfer"`
}

func LoadWorkerConfig() (*BaseWorkerConfig, error) {
	cfg := &BaseWorkerConfig{}

	setDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}
