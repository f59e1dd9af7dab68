package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersWriteToInstalledLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Warn("send failed", zap.String("channel", "sms"))
	Named("fanout").Info("done")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "send failed", entries[0].Message)
	assert.Equal(t, "sms", entries[0].ContextMap()["channel"])
	assert.Equal(t, "fanout", entries[1].LoggerName)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(LogConfig{Level: "loud"}, "production")
	assert.Error(t, err)
}
