package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"json info", "info", "json"},
		{"console debug", "debug", "console"},
		{"unknown level falls back", "loud", "json"},
		{"upper case level", "WARN", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.level, tt.format)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestKeyValuesReachCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.With("orderID", "ord-1").Info("Status changed", "from", "Lead", "to", "Quote")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Status changed", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "ord-1", fields["orderID"])
	assert.Equal(t, "Lead", fields["from"])
	assert.Equal(t, "Quote", fields["to"])
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Debug("ignored")
	l.Error("ignored", "error", "boom")
	assert.NoError(t, l.Sync())
}
