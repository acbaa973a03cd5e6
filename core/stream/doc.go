// Package stream serves topic event streams over WebSocket.
//
// A client connects to
//
//	GET /v1/topics/{topic}/stream?since=<ms>
//
// and receives every event of the topic stored after the since watermark,
// then every live event, as JSON text frames:
//
//	{"type":"event","topic":"42","ts":1712000000000,"event":{"id":"...","type":"message.created","payload":{...}}}
//	{"type":"heartbeat","ts":1712000030000}
//	{"type":"lagged","skipped":12}
//
// The handler authorizes the request before upgrading. Authorizer errors
// ErrUnauthorized, ErrForbidden and ErrTopicNotFound become 401, 403 and 404;
// a missing topic or malformed watermark is a 400.
//
// Each session subscribes to the live feed before replaying from the durable
// log, so nothing published in between is missed. Events forwarded on one
// path are remembered by ID for a short window and dropped if they arrive on
// the other. Clients should still deduplicate by event ID.
//
// A session whose live backlog overflowed sends a lagged frame and refills
// the gap from the log. Clients may send {"type":"heartbeat"} (answered with
// a heartbeat frame) and {"type":"preview","data":{"content":"..."}} (fanned
// out to the other subscribers as an ephemeral preview event). Anything else
// is ignored. A session that receives nothing for the idle timeout is closed.
//
// Usage:
//
//	h := stream.NewHandlerFromConfig(cfg, hub, store, authorizer,
//		stream.WithPreviewPublisher(publisher),
//		stream.WithLogger(log))
//	mux.Handle("GET /v1/topics/{topic}/stream", h)
//
//	// on shutdown, before server.Shutdown
//	h.Close()
package stream
