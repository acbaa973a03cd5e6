package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailbox/core/logger"
)

func TestNew_JSONOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithProduction("relay"),
		logger.WithOutput(&buf),
	)

	log.Info("published", logger.Topic("chan-1"), logger.Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "published", rec["msg"])
	assert.Equal(t, "relay", rec["app"])
	assert.Equal(t, "production", rec["env"])
	assert.Equal(t, "chan-1", rec["topic"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithLevelString("warn"),
	)

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithEnvironment("development", "relay"), logger.WithOutput(&buf))
	log.Debug("visible in development")
	assert.Contains(t, buf.String(), "visible in development")
	assert.Contains(t, buf.String(), "env=development")
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.Topic("").Equal(slog.Attr{}))
	assert.True(t, logger.SessionID("").Equal(slog.Attr{}))
	assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))

	attr := logger.Errors(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Len(t, attr.Value.Group(), 2)

	assert.Equal(t, int64(150), logger.Timestamp(150).Value.Int64())
	assert.Equal(t, "alice", logger.Key("user_id", "alice").Value.String())
}
