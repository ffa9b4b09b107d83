package worker

// RedisWorkerConfig holds the connection settings for the coordination
// service shared by every worker process (locks, rate tokens, queues,
// progress pub/sub).
type RedisWorkerConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
}
