package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/internal/storage/sqlite"
	"github.com/aeo-tracker/backend/pkg/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}
		backend, err := Open(cfg)
		require.NoError(t, err)
		defer backend.Close()

		assert.IsType(t, &slots.Memory{}, backend)
		require.NoError(t, backend.Store(ctx, slots.PositionRecordsKey, []byte(`[]`)))
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{
			Storage: config.StorageConfig{Driver: "sqlite"},
			SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "aeo.db")},
		}
		backend, err := Open(cfg)
		require.NoError(t, err)
		defer backend.Close()

		assert.IsType(t, &sqlite.Client{}, backend)
		require.NoError(t, backend.Store(ctx, slots.VariabilityTestsKey, []byte(`[]`)))
		data, err := backend.Load(ctx, slots.VariabilityTestsKey)
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(data))
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(&config.Config{Storage: config.StorageConfig{Driver: "etcd"}})
		assert.Error(t, err)
	})
}
