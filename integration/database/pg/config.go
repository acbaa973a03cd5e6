package pg

import "time"

// Config holds Postgres connection settings.
type Config struct {
	ConnectionString string        `env:"PG_CONN_URL,required"`
	RetryAttempts    int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout   time.Duration `env:"PG_CONNECT_TIMEOUT" envDefault:"30s"`
	CloseTimeout     time.Duration `env:"PG_CLOSE_TIMEOUT" envDefault:"5s"`
	MigrationsTable  string        `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
	AutoMigrate      bool          `env:"PG_AUTO_MIGRATE" envDefault:"true"`
}
