package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Helpers that take identifiers return an empty Attr for empty input; slog
// drops empty attrs, so call sites never branch: log.Info("msg", logger.Error(err)).

// Error attaches err under "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors", keyed by their position in
// errs so the order survives handlers that sort keys.
func Errors(errs ...error) slog.Attr {
	var as []slog.Attr
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func Elapsed(start time.Time) slog.Attr { return slog.Duration("elapsed", time.Since(start)) }

// Timestamp logs an event log timestamp in unix milliseconds.
func Timestamp(ms int64) slog.Attr { return slog.Int64("ts", ms) }

// ID logs an identifier under a caller-chosen key.
func ID(key string, value any) slog.Attr {
	if value == nil {
		return slog.Attr{}
	}
	return slog.Any(key, value)
}

// Key is ID for values that are not identifiers.
func Key(key string, value any) slog.Attr { return ID(key, value) }

func SessionID(id string) slog.Attr { return nonEmpty("session_id", id) }

func Topic(topic string) slog.Attr { return nonEmpty("topic", topic) }

func RequestID(id string) slog.Attr { return nonEmpty("request_id", id) }

func Method(method string) slog.Attr { return slog.String("method", method) }

func Path(path string) slog.Attr { return slog.String("path", path) }

func Status(code int) slog.Attr { return slog.Int("status", code) }

func ClientIP(ip string) slog.Attr { return nonEmpty("client_ip", ip) }

// Component names the subsystem a logger belongs to. Loggers handed to
// components are usually derived with log.With(logger.Component("hub")).
func Component(name string) slog.Attr { return slog.String("component", name) }

// Type logs a frame or event type.
func Type(t string) slog.Attr { return slog.String("type", t) }

func Count(key string, n int) slog.Attr { return slog.Int(key, n) }

func nonEmpty(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}
