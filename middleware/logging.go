package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrymomot/mailbox/core/logger"
)

// LoggingConfig configures the access log middleware.
type LoggingConfig struct {
	// Skip bypasses logging for matching requests, such as health checks.
	Skip func(r *http.Request) bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// LogLevel for successful requests (default: slog.LevelInfo).
	LogLevel slog.Level

	// LogHeaders adds request headers, with SensitiveHeaders redacted.
	LogHeaders       bool
	SensitiveHeaders []string

	// SlowRequestThreshold raises plain requests slower than this to warn
	// (default: 5s). Upgraded streams are exempt.
	SlowRequestThreshold time.Duration

	Component string
}

// Logging writes one line per completed request. Upgraded WebSocket
// requests are logged when the stream ends, with status 101.
func Logging(log *slog.Logger) Middleware {
	return LoggingWithConfig(LoggingConfig{Logger: log})
}

func LoggingWithConfig(cfg LoggingConfig) Middleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SensitiveHeaders == nil {
		cfg.SensitiveHeaders = []string{
			"Authorization",
			"Cookie",
			"Set-Cookie",
			"X-Api-Key",
			"X-Auth-Token",
		}
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = 5 * time.Second
	}
	if cfg.Component == "" {
		cfg.Component = "http"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			attrs := []slog.Attr{
				logger.Component(cfg.Component),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(rw.statusCode),
				slog.Int("bytes", rw.size),
				logger.Duration(duration),
			}
			if id, ok := GetRequestID(r.Context()); ok {
				attrs = append(attrs, logger.RequestID(id))
			}
			if ip, ok := GetClientIP(r.Context()); ok {
				attrs = append(attrs, logger.ClientIP(ip))
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", r.URL.RawQuery))
			}
			if cfg.LogHeaders {
				attrs = append(attrs, slog.Any("headers", redact(r.Header, cfg.SensitiveHeaders)))
			}

			level := cfg.LogLevel
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			case !rw.hijacked && duration > cfg.SlowRequestThreshold:
				level = slog.LevelWarn
				attrs = append(attrs, slog.Bool("slow_request", true))
			}

			cfg.Logger.LogAttrs(r.Context(), level, "HTTP request completed", attrs...)
		})
	}
}

func redact(h http.Header, sensitive []string) map[string]any {
	out := make(map[string]any, len(h))
	for key, values := range h {
		switch {
		case slices.Contains(sensitive, key):
			out[key] = "[REDACTED]"
		case len(values) == 1:
			out[key] = values[0]
		default:
			out[key] = values
		}
	}
	return out
}

// responseWriter records status and size. It passes Hijack and Flush through
// so WebSocket upgrades keep working behind it.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	size          int
	headerWritten bool
	hijacked      bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.headerWritten {
		rw.statusCode = statusCode
		rw.headerWritten = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	conn, brw, err := h.Hijack()
	if err == nil {
		rw.hijacked = true
		rw.statusCode = http.StatusSwitchingProtocols
		rw.headerWritten = true
	}
	return conn, brw, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
