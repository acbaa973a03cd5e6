// Package metrics exposes component statistics to Prometheus.
//
// Each collector reads a component's Stats snapshot at scrape time, so
// components keep plain atomic counters and know nothing about Prometheus.
//
//	reg, err := metrics.NewRegistry(
//		metrics.Pool(pgPool),
//		metrics.Pool(redisPool),
//		metrics.Hub(hub),
//		metrics.Publisher(publisher),
//		metrics.Stream(streams),
//		metrics.Housekeeping(hk),
//	)
//	mux.Handle("GET /metrics", metrics.Handler(reg))
package metrics
