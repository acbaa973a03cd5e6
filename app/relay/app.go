package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailbox/core/config"
	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/eventlog"
	"github.com/dmitrymomot/mailbox/core/health"
	"github.com/dmitrymomot/mailbox/core/housekeeping"
	"github.com/dmitrymomot/mailbox/core/logger"
	"github.com/dmitrymomot/mailbox/core/metrics"
	"github.com/dmitrymomot/mailbox/core/server"
	"github.com/dmitrymomot/mailbox/core/stream"
	"github.com/dmitrymomot/mailbox/integration/database/pg"
	"github.com/dmitrymomot/mailbox/integration/database/redis"
	"github.com/dmitrymomot/mailbox/middleware"
	"github.com/dmitrymomot/mailbox/pkg/async"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
	"github.com/dmitrymomot/mailbox/pkg/ratelimiter"
	"github.com/dmitrymomot/mailbox/pkg/respool"
)

// StreamRoute is the pattern the stream handler is mounted on.
const StreamRoute = "GET /v1/topics/{topic}/stream"

// App wires the event log, hub, publisher, stream handler and housekeeping
// behind one HTTP server.
type App struct {
	config Config
	logger *slog.Logger

	pgPool    *respool.Pool[*pgx.Conn]
	redisPool *respool.Pool[*goredis.Client]

	log         eventlog.Log
	auth        stream.Authorizer
	members     *pg.MemberStore
	hub         *broadcast.Hub[event.Event]
	publisher   *event.Publisher
	streams     *stream.Handler
	housekeeper *housekeeping.Housekeeper
	limiter     *ratelimiter.Limiter
	server      *server.Server
	registry    *prometheus.Registry
	mux         *http.ServeMux
	handler     http.Handler

	configured bool
	checks     []func(context.Context) error
	collectors []prometheus.Collector
	closeOnce  sync.Once
	closeErr   error
}

type AppOption func(*App) error

// New loads configuration from the environment unless WithConfig is given,
// connects the pools that no option replaced, and assembles the app.
// Pools are warmed here, so connection failures surface at startup.
func New(ctx context.Context, opts ...AppOption) (*App, error) {
	app := &App{}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if !app.configured {
		if err := config.Load(&app.config); err != nil {
			return nil, err
		}
	}
	if app.logger == nil {
		app.logger = logger.New(
			logger.WithEnvironment(app.config.Env, app.config.AppName),
			logger.WithLevelString(app.config.LogLevel),
		)
	}

	if err := app.build(ctx); err != nil {
		_ = app.closePools(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	if a.log == nil {
		if err := a.connectRedis(ctx); err != nil {
			return err
		}
	}
	if a.auth == nil {
		if err := a.connectPostgres(ctx); err != nil {
			return err
		}
	}

	a.hub = broadcast.NewHub[event.Event](
		broadcast.WithCapacity(a.config.HubCapacity),
		broadcast.WithLogger(a.logger.With(logger.Component("hub"))),
	)
	a.publisher = event.NewPublisherFromConfig(a.config.Events, a.log, a.hub,
		event.WithLogger(a.logger.With(logger.Component("publisher"))))
	streamOpts := []stream.Option{
		stream.WithPreviewPublisher(a.publisher),
		stream.WithLogger(a.logger.With(logger.Component("stream"))),
	}
	if a.config.ConnectLimit.Capacity > 0 {
		limiter, err := ratelimiter.New(a.config.ConnectLimit,
			ratelimiter.WithLogger(a.logger.With(logger.Component("ratelimiter"))))
		if err != nil {
			return err
		}
		a.limiter = limiter
		a.collectors = append(a.collectors, metrics.ConnectLimiter(limiter))
		streamOpts = append(streamOpts, stream.WithConnectLimiter(limiter))
	}
	a.streams = stream.NewHandlerFromConfig(a.config.Stream, a.hub, a.log, a.auth, streamOpts...)

	hk, err := housekeeping.NewFromConfig(a.config.Housekeeping, a.hub, a.log,
		housekeeping.WithLogger(a.logger.With(logger.Component("housekeeping"))))
	if err != nil {
		return err
	}
	a.housekeeper = hk

	if a.server == nil {
		srv, err := server.NewFromConfig(a.config.Server,
			server.WithLogger(a.logger.With(logger.Component("server"))),
			server.WithShutdownHook(a.streams.Close))
		if err != nil {
			return err
		}
		a.server = srv
	}

	a.collectors = append(a.collectors,
		metrics.Hub(a.hub),
		metrics.Publisher(a.publisher),
		metrics.Stream(a.streams),
		metrics.Housekeeping(a.housekeeper),
		metrics.Server(a.server),
	)
	reg, err := metrics.NewRegistry(a.collectors...)
	if err != nil {
		return err
	}
	a.registry = reg

	a.mux = http.NewServeMux()
	a.mux.Handle(StreamRoute, a.streams)
	a.mux.HandleFunc("GET /health/live", health.Liveness)
	a.mux.HandleFunc("GET /health/ping", health.NoContent)
	a.mux.HandleFunc("GET /health/ready", a.readiness())
	a.mux.Handle("GET /metrics", metrics.Handler(a.registry))

	a.handler = middleware.Chain(a.mux,
		middleware.RequestID(),
		middleware.ClientIP(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger: a.logger,
			Skip:   isOpsRequest,
		}),
	)
	return nil
}

func isOpsRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/health/") || r.URL.Path == "/metrics"
}

func (a *App) connectRedis(ctx context.Context) error {
	factory, err := redis.Factory(a.config.Redis)
	if err != nil {
		return err
	}
	// Pool warm-up fails on the first refused connection, so wait for the
	// server with backoff first.
	conn, err := redis.Connect(ctx, a.config.Redis)
	if err != nil {
		return err
	}
	_ = conn.Close()

	pool, err := respool.NewFromConfig(ctx, a.config.RedisPool, factory,
		respool.WithName("redis"),
		respool.WithLogger(a.logger.With(logger.Component("pool"))))
	if err != nil {
		return err
	}
	a.redisPool = pool

	store, err := eventlog.NewRedisStoreFromConfig(a.config.EventLog, pool,
		eventlog.WithLogger(a.logger.With(logger.Component("eventlog"))))
	if err != nil {
		return err
	}
	a.log = store
	a.checks = append(a.checks, redis.PoolHealthcheck(pool))
	a.collectors = append(a.collectors, metrics.Pool(pool))
	return nil
}

func (a *App) connectPostgres(ctx context.Context) error {
	conn, err := pg.Connect(ctx, a.config.DB)
	if err != nil {
		return err
	}
	_ = conn.Close(ctx)

	if a.config.DB.AutoMigrate {
		if err := pg.Migrate(ctx, a.config.DB, a.logger); err != nil {
			return err
		}
	}
	factory, err := pg.Factory(a.config.DB)
	if err != nil {
		return err
	}
	pool, err := respool.NewFromConfig(ctx, a.config.PGPool, factory,
		respool.WithName("pg"),
		respool.WithLogger(a.logger.With(logger.Component("pool"))))
	if err != nil {
		return err
	}
	a.pgPool = pool

	members, err := pg.NewMemberStore(pool, pg.WithLogger(a.logger.With(logger.Component("members"))))
	if err != nil {
		return err
	}
	a.members = members
	a.auth = members
	a.checks = append(a.checks, pg.PoolHealthcheck(pool))
	a.collectors = append(a.collectors, metrics.Pool(pool))
	return nil
}

// readiness bounds every check so a drained pool reports not ready instead
// of hanging the request.
func (a *App) readiness() http.HandlerFunc {
	timeout := a.config.ReadinessTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	checks := make([]func(context.Context) error, 0, len(a.checks))
	for _, check := range a.checks {
		checks = append(checks, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return check(ctx)
		})
	}
	return health.Readiness(a.logger, checks...)
}

// Handle mounts an extra route, such as the CRUD handlers that publish events.
// Call it before Run.
func (a *App) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the root HTTP handler with request ID, client address and
// access log middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Publisher returns the publisher CRUD handlers hand their events to.
func (a *App) Publisher() *event.Publisher { return a.publisher }

// Members returns the Postgres membership store, or nil when a custom
// authorizer replaced it.
func (a *App) Members() *pg.MemberStore { return a.members }

// Addr returns the address the server listens on.
func (a *App) Addr() string { return a.server.Addr() }

func (a *App) Logger() *slog.Logger { return a.logger }

// Run serves HTTP and runs housekeeping until ctx is cancelled or either
// fails, then drains pending publishes and releases every resource.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Run(gctx, a.handler))
	g.Go(a.housekeeper.Run(gctx))
	if a.limiter != nil {
		g.Go(a.limiter.Run(gctx))
	}
	err := g.Wait()

	shutdown := a.config.Server.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = server.DefaultShutdownTimeout
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	return errors.Join(err, a.Close(closeCtx))
}

// Close stops stream sessions, waits for in-flight publishes and closes the
// hub and pools. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.streams.Close()
		var errs []error
		if err := a.publisher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.hub.Close()
		errs = append(errs, a.closePools(ctx))
		a.closeErr = errors.Join(errs...)
		a.logger.Info("application stopped", logger.Error(a.closeErr))
	})
	return a.closeErr
}

// closePools closes both pools concurrently. Closing runs to completion even
// when ctx ends; ctx only bounds how long Close waits for it.
func (a *App) closePools(ctx context.Context) error {
	var pools []io.Closer
	if a.redisPool != nil {
		pools = append(pools, a.redisPool)
	}
	if a.pgPool != nil {
		pools = append(pools, a.pgPool)
	}
	futures := make([]*async.Future, 0, len(pools))
	for _, p := range pools {
		futures = append(futures, async.Exec(context.WithoutCancel(ctx), p, closePool))
	}
	return async.WaitAll(ctx, futures...)
}

func closePool(_ context.Context, p io.Closer) error { return p.Close() }

// WithConfig replaces environment loading.
func WithConfig(cfg Config) AppOption {
	return func(app *App) error {
		app.config = cfg
		app.configured = true
		return nil
	}
}

func WithLogger(logger *slog.Logger) AppOption {
	return func(app *App) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		app.logger = logger
		return nil
	}
}

// WithEventLog replaces the Redis event log; no Redis pool is created.
func WithEventLog(log eventlog.Log) AppOption {
	return func(app *App) error {
		if log == nil {
			return errors.New("event log cannot be nil")
		}
		app.log = log
		return nil
	}
}

// WithAuthorizer replaces the Postgres membership authorizer; no Postgres
// pool is created and no migrations run.
func WithAuthorizer(auth stream.Authorizer) AppOption {
	return func(app *App) error {
		if auth == nil {
			return errors.New("authorizer cannot be nil")
		}
		app.auth = auth
		return nil
	}
}

func WithServer(server *server.Server) AppOption {
	return func(app *App) error {
		if server == nil {
			return errors.New("server cannot be nil")
		}
		app.server = server
		return nil
	}
}
