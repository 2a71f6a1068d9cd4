package slots

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_LoadStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	data, err := m.Load(ctx, PositionRecordsKey)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, m.Store(ctx, PositionRecordsKey, []byte(`[]`)))
	data, err = m.Load(ctx, PositionRecordsKey)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestMemory_Quota(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	require.NoError(t, m.Store(ctx, VariabilityTestsKey, []byte(`[1]`)))
	err := m.Store(ctx, VariabilityTestsKey, []byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	data, err := m.Load(ctx, VariabilityTestsKey)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(data), "failed write must not replace the slot")
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.Close())

	_, err := m.Load(ctx, MonitoringSettingsKey)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, m.Store(ctx, MonitoringSettingsKey, []byte(`[]`)), ErrUnavailable)
}
