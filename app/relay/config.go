package relay

import (
	"time"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/housekeeping"
	"github.com/dmitrymomot/mailbox/core/server"
	"github.com/dmitrymomot/mailbox/core/stream"
	"github.com/dmitrymomot/mailbox/integration/database/pg"
	"github.com/dmitrymomot/mailbox/integration/database/redis"
	"github.com/dmitrymomot/mailbox/pkg/ratelimiter"
	"github.com/dmitrymomot/mailbox/pkg/respool"
)

type Config struct {
	Server       server.Config
	DB           pg.Config
	Redis        redis.Config
	PGPool       respool.Config `envPrefix:"PG_POOL_"`
	RedisPool    respool.Config `envPrefix:"REDIS_POOL_"`
	EventLog     eventlog.Config
	Events       event.Config
	Stream       stream.Config
	Housekeeping housekeeping.Config
	// A zero capacity disables the per-user stream connect limit.
	ConnectLimit ratelimiter.Config `envPrefix:"STREAM_CONNECT_LIMIT_"`

	AppName          string        `env:"APP_NAME" envDefault:"mailbox"`
	Env              string        `env:"APP_ENV" envDefault:"development"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	HubCapacity      int           `env:"HUB_CAPACITY" envDefault:"256"`
	ReadinessTimeout time.Duration `env:"READINESS_TIMEOUT" envDefault:"2s"`
}
