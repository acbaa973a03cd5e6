package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/mailbox/pkg/respool"
)

// Connect creates a client and waits until it answers PING, retrying with
// exponential backoff. The returned client keeps go-redis' own connection pool.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := parseURL(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := waitReady(ctx, cfg, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Factory returns a respool factory that builds single-connection clients.
// Pooling happens in respool, so each client owns exactly one connection.
func Factory(cfg Config) (respool.Funcs[*redis.Client], error) {
	opts, err := parseURL(cfg)
	if err != nil {
		return respool.Funcs[*redis.Client]{}, err
	}
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	opts.MaxIdleConns = 1

	return respool.Funcs[*redis.Client]{
		MakeFunc: func(ctx context.Context) (*redis.Client, error) {
			o := *opts
			client := redis.NewClient(&o)
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return nil, errors.Join(ErrFailedToCreateClient, err)
			}
			return client, nil
		},
		ValidateFunc: func(ctx context.Context, client *redis.Client) bool {
			return client.Ping(ctx).Err() == nil
		},
		DestroyFunc: func(client *redis.Client) {
			_ = client.Close()
		},
	}, nil
}

// Pool lends out clients. *respool.Pool[*redis.Client] satisfies it.
type Pool interface {
	With(ctx context.Context, fn func(context.Context, *redis.Client) error) error
}

// PoolHealthcheck returns a check that borrows a pooled client and pings it.
// A pool with every client checked out makes the check wait, so callers
// should bound ctx.
func PoolHealthcheck(pool Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		err := pool.With(ctx, func(ctx context.Context, client *redis.Client) error {
			return client.Ping(ctx).Err()
		})
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

func parseURL(cfg Config) (*redis.Options, error) {
	if strings.TrimSpace(cfg.ConnectionURL) == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(cfg.ConnectionURL, "redis://") && !strings.HasPrefix(cfg.ConnectionURL, "rediss://") {
		return nil, ErrFailedToParseRedisConnString
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return opts, nil
}

func waitReady(ctx context.Context, cfg Config, client *redis.Client) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}
	attempts := max(cfg.RetryAttempts, 1)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(interval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrRedisNotReady, err)
	}
	return nil
}
