package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_WritesJSONToFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "aeo.log")
	require.NoError(t, Init("debug", "json", path))

	Info("store opened", zap.String("driver", "memory"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"store opened"`)
	assert.Contains(t, string(data), `"driver":"memory"`)
	assert.Contains(t, string(data), `"service":"aeo-tracker"`)
}

func TestInit_RejectsBadInput(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	assert.Error(t, Init("loud", "json", "stdout"))
	assert.Error(t, Init("info", "xml", "stdout"))
}

func TestDefaultLoggerIsUsableWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Warn("no init")
		Named("scheduler").Debug("still fine")
	})
}
