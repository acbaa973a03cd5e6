package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// RequestIDConfig configures the request ID middleware.
type RequestIDConfig struct {
	// Skip bypasses the middleware for matching requests.
	Skip func(r *http.Request) bool
	// Generator creates new IDs (default: UUID v4).
	Generator func() string
	// HeaderName is the request and response header (default: "X-Request-ID").
	HeaderName string
	// UseExisting keeps an ID sent by the client or an upstream proxy.
	UseExisting bool
}

// RequestID assigns every request a fresh UUID, stored in the context and
// echoed in the X-Request-ID response header.
func RequestID() Middleware {
	return RequestIDWithConfig(RequestIDConfig{})
}

func RequestIDWithConfig(cfg RequestIDConfig) Middleware {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Request-ID"
	}
	if cfg.Generator == nil {
		cfg.Generator = func() string { return uuid.New().String() }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			var id string
			if cfg.UseExisting {
				id = r.Header.Get(cfg.HeaderName)
			}
			if id == "" {
				id = cfg.Generator()
			}

			w.Header().Set(cfg.HeaderName, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id)))
		})
	}
}

// GetRequestID returns the ID stored by RequestID.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok
}
