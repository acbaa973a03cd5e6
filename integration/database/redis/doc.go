// Package redis connects to Redis and builds pooled clients for the event log.
//
// Connect returns a ready go-redis client, retrying PING with exponential
// backoff until it answers or the attempts run out:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Factory plugs Redis into respool. Every client it makes holds a single
// connection, so the pool size bounds the number of Redis connections:
//
//	factory, err := redis.Factory(cfg)
//	if err != nil {
//		return err
//	}
//	pool, err := respool.NewFromConfig(ctx, poolCfg, factory, respool.WithName("redis"))
//
// PoolHealthcheck returns a readiness check that pings through the pool.
//
// # Configuration
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//		DialTimeout    time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
//	}
//
// Only redis:// and rediss:// URLs are accepted.
//
// # Errors
//
//   - ErrEmptyConnectionURL: no URL configured
//   - ErrFailedToParseRedisConnString: malformed URL or unsupported scheme
//   - ErrRedisNotReady: PING kept failing until retries or ConnectTimeout ran out
//   - ErrFailedToCreateClient: a pooled client could not reach Redis
//   - ErrHealthcheckFailed: a readiness ping failed
package redis
