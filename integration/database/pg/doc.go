// Package pg connects to PostgreSQL, builds pooled connections and keeps
// channel membership for stream authorization.
//
// Connections are plain *pgx.Conn values pooled by respool rather than
// pgxpool, so one pool type serves both Redis and Postgres:
//
//	factory, err := pg.Factory(cfg)
//	if err != nil {
//		return err
//	}
//	pool, err := respool.NewFromConfig(ctx, poolCfg, factory, respool.WithName("pg"))
//
// Connect opens one connection, retrying with backoff until the server
// answers. Call it before building a pool to wait out a slow database start.
//
// Migrate applies the embedded schema with goose through the pgx stdlib
// driver:
//
//	if err := pg.Migrate(ctx, cfg, logger); err != nil {
//		return err
//	}
//
// MemberStore implements stream.Authorizer. The user ID comes from a gateway
// header (X-User-ID by default). A missing header is unauthorized, an unknown
// channel is not found, and a non-member is forbidden:
//
//	members, err := pg.NewMemberStore(pool)
//	streams, err := stream.NewHandler(hub, log, members)
//
// Store methods run on the transaction attached with WithTx when there is
// one, and on a pooled connection otherwise:
//
//	tx, err := conn.Begin(ctx)
//	defer tx.Rollback(ctx)
//	ctx = pg.WithTx(ctx, tx)
//	_ = members.CreateChannel(ctx, "general")
//	_ = members.AddMember(ctx, "general", "alice")
//	err = tx.Commit(ctx)
//
// PoolHealthcheck returns a readiness check that pings through the pool.
//
// # Configuration
//
//	type Config struct {
//		ConnectionString string        `env:"PG_CONN_URL,required"`
//		RetryAttempts    int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval    time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout   time.Duration `env:"PG_CONNECT_TIMEOUT" envDefault:"30s"`
//		CloseTimeout     time.Duration `env:"PG_CLOSE_TIMEOUT" envDefault:"5s"`
//		MigrationsTable  string        `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
//		AutoMigrate      bool          `env:"PG_AUTO_MIGRATE" envDefault:"true"`
//	}
package pg
