// Package relay assembles the mailbox event relay: a Redis-backed event log,
// the in-process broadcast hub, the event publisher, the WebSocket stream
// endpoint and the housekeeping loops, served by one HTTP server.
//
// Routes:
//
//	GET /v1/topics/{topic}/stream?since=<ms>  event stream (WebSocket)
//	GET /health/live                          liveness
//	GET /health/ping                          204 for load balancers
//	GET /health/ready                         pool-backed readiness
//	GET /metrics                              Prometheus metrics
//
// CRUD handlers that produce events are mounted with Handle and publish
// through Publisher:
//
//	app, err := relay.New(ctx)
//	if err != nil {
//		return err
//	}
//	app.Handle("POST /v1/channels/{id}/messages", createMessage(app.Publisher()))
//	return app.Run(ctx)
//
// WithEventLog and WithAuthorizer replace the Redis log and the Postgres
// membership store; the corresponding pool is then never created.
package relay
