package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/mailbox/core/logger"
)

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
//
// Example:
//
//	mux.Handle("GET /health/ready", health.Readiness(
//		log,
//		pg.PoolHealthcheck(pgPool),
//		redis.PoolHealthcheck(redisPool),
//	))
func Readiness(log *slog.Logger, fn ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, f := range fn {
			if err := f(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "Readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, http.StatusText(http.StatusServiceUnavailable))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "READY")
	}
}
