// Package middleware provides net/http middleware for the relay's HTTP
// surface: request IDs, client address resolution and access logging.
//
//	handler := middleware.Chain(mux,
//		middleware.RequestID(),
//		middleware.ClientIP(),
//		middleware.Logging(log),
//	)
//
// Order matters: Logging reads the request ID and client address that the
// earlier middlewares put in the context.
//
// The logging wrapper supports http.Hijacker, so WebSocket upgrades work
// behind it and are logged with status 101 once the stream ends.
package middleware
