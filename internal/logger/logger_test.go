package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", " Production ", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("meeting", "SA2#130").Info("parsed agenda report", "documents", 2)
	l.Debug("dropped below level")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "parsed agenda report", entry.Message)
	require.Equal(t, map[string]interface{}{"meeting": "SA2#130", "documents": int64(2)}, entry.ContextMap())
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l := Nop()
	require.Same(t, l, OrNop(l))
}
