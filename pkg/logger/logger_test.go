package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretsAndHashesUsers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("calling upstream", "api_key", "sk-123", "user_id", "u1", "project_id", "p1")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.NotEqual(t, "u1", fields["user_id"])
	assert.Len(t, fields["user_id"], 12)
	assert.Equal(t, "p1", fields["project_id"])
}

func TestWithSanitizesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "rag", "authorization", "Bearer x")

	log.Warn("degraded")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "rag", fields["component"])
	assert.Equal(t, "[REDACTED]", fields["authorization"])
}

func TestOddKeyValues(t *testing.T) {
	assert.Equal(t, []any{"k", "v", "dangling"}, sanitize([]any{"k", "v", "dangling"}))
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		l, err := New(mode)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}
