// Package logger builds slog loggers for the relay and provides attribute helpers
// for the fields it logs most: topics, pools, sessions, timestamps and errors.
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, cfg.AppName), logger.WithLevelString(cfg.LogLevel))
//	log.Warn("persist failed", logger.Topic(topic), logger.Error(err))
//
// Helpers return an empty slog.Attr for nil or empty values, which slog skips.
package logger
