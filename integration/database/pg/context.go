package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txContextKey struct{}

// WithTx returns a context carrying tx. Store methods called with it run
// inside the transaction instead of borrowing a pooled connection.
// A nil tx returns ctx unchanged.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the transaction stored by WithTx.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// Querier is the subset of *pgx.Conn and pgx.Tx the stores use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withQuerier runs fn on the transaction in ctx, or on a connection from pool.
func withQuerier(ctx context.Context, pool Pool, fn func(context.Context, Querier) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if pool == nil {
		return ErrNilPool
	}
	return pool.With(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		return fn(ctx, conn)
	})
}
