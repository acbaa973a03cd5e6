// Package mailbox is a real-time event relay for chat channels. Producers publish
// channel events, the relay appends durable ones to an ordered per-topic log,
// fans them out to live subscribers and streams them to websocket clients that
// can resume from their last seen event.
//
// # Package Organization
//
// The module is organized into the same four groups as the rest of the toolkit:
//
//   - Core: relay components and the ambient service stack
//   - Middleware: net/http middleware used by the relay server
//   - Utilities: standalone generic packages (pool, hub, limiter, async)
//   - Integrations: Postgres and Redis connectivity
//
// # Getting Documentation
//
//	go doc github.com/dmitrymomot/mailbox/core/stream
//	go doc -all github.com/dmitrymomot/mailbox/pkg/broadcast
//
// # Core Packages
//
//	github.com/dmitrymomot/mailbox/core/config        - Type-safe environment variable loading
//	github.com/dmitrymomot/mailbox/core/event         - Event envelopes, bodies and the publisher
//	github.com/dmitrymomot/mailbox/core/eventlog      - Ordered per-topic event log (Redis streams, in-memory)
//	github.com/dmitrymomot/mailbox/core/health        - Liveness and readiness handlers
//	github.com/dmitrymomot/mailbox/core/housekeeping  - Periodic liveness sweeps over stream sessions
//	github.com/dmitrymomot/mailbox/core/logger        - Structured logging built on slog
//	github.com/dmitrymomot/mailbox/core/metrics       - Prometheus collectors for relay components
//	github.com/dmitrymomot/mailbox/core/server        - HTTP server with graceful shutdown
//	github.com/dmitrymomot/mailbox/core/stream        - Websocket stream sessions with replay and resume
//
// # HTTP Middleware
//
//	github.com/dmitrymomot/mailbox/middleware         - Request ID, client IP and request logging
//
// # Utility Packages
//
//	github.com/dmitrymomot/mailbox/pkg/async          - Tracked background tasks with Future results
//	github.com/dmitrymomot/mailbox/pkg/broadcast      - Topic-keyed pub/sub hub with bounded subscriber buffers
//	github.com/dmitrymomot/mailbox/pkg/clientip       - Real client IP extraction from HTTP requests
//	github.com/dmitrymomot/mailbox/pkg/ratelimiter    - In-memory token bucket limiter
//	github.com/dmitrymomot/mailbox/pkg/respool        - Generic bounded resource pool with validation
//
// # Integration Packages
//
//	github.com/dmitrymomot/mailbox/integration/database/pg    - Postgres connections, migrations and channel membership
//	github.com/dmitrymomot/mailbox/integration/database/redis - Redis connections and pooled clients
//
// # Applications
//
//	github.com/dmitrymomot/mailbox/app/relay          - Wires every component into a runnable relay
//	github.com/dmitrymomot/mailbox/cmd/relay          - Relay binary
//
// # Quick Start
//
//	func main() {
//		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
//		defer stop()
//
//		app, err := relay.New(ctx)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		app.Publisher().Publish("channel:42", event.MessageCreated{
//			ChannelID: "42",
//			MessageID: "m-1",
//			AuthorID:  "alice",
//			Content:   "hello",
//			CreatedAt: time.Now(),
//		})
//
//		if err := app.Run(ctx); err != nil {
//			log.Fatal(err)
//		}
//	}
package mailbox
