package housekeeping

import "time"

type Config struct {
	TopicSweepInterval time.Duration `env:"HOUSEKEEPING_TOPIC_SWEEP_INTERVAL" envDefault:"5m"`
	LogPruneInterval   time.Duration `env:"HOUSEKEEPING_LOG_PRUNE_INTERVAL" envDefault:"12h"`
	Retention          time.Duration `env:"HOUSEKEEPING_RETENTION" envDefault:"24h"`
	PruneTimeout       time.Duration `env:"HOUSEKEEPING_PRUNE_TIMEOUT" envDefault:"1m"`
	PruneOnStart       bool          `env:"HOUSEKEEPING_PRUNE_ON_START" envDefault:"true"`
}

const (
	DefaultTopicSweepInterval = 5 * time.Minute
	DefaultLogPruneInterval   = 12 * time.Hour
	DefaultRetention          = 24 * time.Hour
	DefaultPruneTimeout       = time.Minute
)
