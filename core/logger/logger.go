package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type config struct {
	level   slog.Level
	json    bool
	output  io.Writer
	attrs   []slog.Attr
	options *slog.HandlerOptions
}

// Option configures the logger built by New.
type Option func(*config)

// New creates a slog.Logger. Without options it writes text at info level to stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	hopts := cfg.options
	if hopts == nil {
		hopts = &slog.HandlerOptions{}
	}
	hopts.Level = cfg.level

	var h slog.Handler
	if cfg.json {
		h = slog.NewJSONHandler(cfg.output, hopts)
	} else {
		h = slog.NewTextHandler(cfg.output, hopts)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	return slog.New(h)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithDevelopment configures text output at debug level tagged with the app name.
func WithDevelopment(app string) Option {
	return func(c *config) {
		c.level = slog.LevelDebug
		c.json = false
		c.attrs = append(c.attrs, slog.String("app", app), slog.String("env", "development"))
	}
}

// WithStaging configures JSON output at info level tagged with the app name.
func WithStaging(app string) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		c.json = true
		c.attrs = append(c.attrs, slog.String("app", app), slog.String("env", "staging"))
	}
}

// WithProduction configures JSON output at info level tagged with the app name.
func WithProduction(app string) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		c.json = true
		c.attrs = append(c.attrs, slog.String("app", app), slog.String("env", "production"))
	}
}

// WithEnvironment picks one of the presets by name; unknown names fall back to development.
func WithEnvironment(env, app string) Option {
	switch strings.ToLower(env) {
	case "production", "prod":
		return WithProduction(app)
	case "staging", "stage":
		return WithStaging(app)
	default:
		return WithDevelopment(app)
	}
}

func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithLevelString parses "debug", "info", "warn" or "error". Unknown values are ignored.
func WithLevelString(level string) Option {
	return func(c *config) {
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err == nil {
			c.level = l
		}
	}
}

func WithJSONFormatter() Option {
	return func(c *config) {
		c.json = true
	}
}

func WithTextFormatter() Option {
	return func(c *config) {
		c.json = false
	}
}

func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithHandlerOptions sets base handler options. The level is always taken from WithLevel.
func WithHandlerOptions(opts *slog.HandlerOptions) Option {
	return func(c *config) {
		c.options = opts
	}
}
