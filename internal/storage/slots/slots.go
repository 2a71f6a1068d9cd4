// Package slots defines the persistence contract behind the temporal store:
// a handful of named slots, each holding one JSON array that is read and
// written in full.
package slots

import (
	"context"
	"errors"
)

const (
	PositionRecordsKey    = "aeo_position_records"
	VariabilityTestsKey   = "aeo_variability_tests"
	MonitoringSettingsKey = "aeo_monitoring_settings"
)

// Keys lists every slot the store uses.
var Keys = []string{PositionRecordsKey, VariabilityTestsKey, MonitoringSettingsKey}

var (
	// ErrUnavailable means the medium cannot be reached or is disabled.
	ErrUnavailable = errors.New("storage medium unavailable")
	// ErrQuotaExceeded means a write was refused because the slot is full.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Backend is a local key-value medium. Load returns (nil, nil) for a slot
// that has never been written.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Close() error
}
