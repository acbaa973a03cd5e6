package respool

import "time"

// Config holds pool settings. Embed it with an env prefix per resource kind:
//
//	PGPool    respool.Config `envPrefix:"PG_POOL_"`
//	RedisPool respool.Config `envPrefix:"REDIS_POOL_"`
type Config struct {
	Size            int           `env:"SIZE" envDefault:"10"`
	ValidateTimeout time.Duration `env:"VALIDATE_TIMEOUT" envDefault:"5s"`
	RetryInterval   time.Duration `env:"RETRY_INTERVAL" envDefault:"1s"`
}

const (
	DefaultSize            = 10
	DefaultValidateTimeout = 5 * time.Second
	DefaultRetryInterval   = time.Second
)
