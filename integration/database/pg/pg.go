package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/mailbox/pkg/respool"
)

// Connect opens a single connection, retrying with exponential backoff until
// it succeeds or cfg.RetryAttempts is exhausted.
func Connect(ctx context.Context, cfg Config) (*pgx.Conn, error) {
	connCfg, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}

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

	var conn *pgx.Conn
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := pgx.ConnectConfig(ctx, connCfg.Copy())
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close(context.Background())
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}
	return conn, nil
}

// Factory returns a respool factory for Postgres connections. A connection is
// valid while it is open and answers a ping.
func Factory(cfg Config) (respool.Funcs[*pgx.Conn], error) {
	connCfg, err := parseConfig(cfg)
	if err != nil {
		return respool.Funcs[*pgx.Conn]{}, err
	}
	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 5 * time.Second
	}

	return respool.Funcs[*pgx.Conn]{
		MakeFunc: func(ctx context.Context) (*pgx.Conn, error) {
			conn, err := pgx.ConnectConfig(ctx, connCfg.Copy())
			if err != nil {
				return nil, errors.Join(ErrFailedToOpenDBConnection, err)
			}
			return conn, nil
		},
		ValidateFunc: func(ctx context.Context, conn *pgx.Conn) bool {
			return !conn.IsClosed() && conn.Ping(ctx) == nil
		},
		DestroyFunc: func(conn *pgx.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = conn.Close(ctx)
		},
	}, nil
}

// Pool lends out connections. *respool.Pool[*pgx.Conn] satisfies it.
type Pool interface {
	With(ctx context.Context, fn func(context.Context, *pgx.Conn) error) error
}

// PoolHealthcheck returns a check that borrows a pooled connection and pings it.
func PoolHealthcheck(pool Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		err := pool.With(ctx, func(ctx context.Context, conn *pgx.Conn) error {
			return conn.Ping(ctx)
		})
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

func parseConfig(cfg Config) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, ErrEmptyConnectionString
	}
	connCfg, err := pgx.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	return connCfg, nil
}
