// Package server runs an http.Server with graceful shutdown.
//
// Server.Run returns a function suited to errgroup: it serves until the
// context is cancelled, then shuts down within the configured timeout.
//
//	srv, err := server.NewFromConfig(cfg,
//		server.WithLogger(log),
//		server.WithShutdownHook(streams.Close))
//	if err != nil {
//		return err
//	}
//	g.Go(srv.Run(ctx, mux))
//
// Shutdown hooks run when Stop begins. http.Server does not wait for hijacked
// connections such as WebSocket streams, so their owner closes them in a hook.
// Handlers that are still blocked after the drain see their request context
// cancelled. Stats reports open, accepted and hijacked connections.
package server
