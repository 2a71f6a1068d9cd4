package slots

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Backend. A positive maxBytes makes writes larger
// than the quota fail with ErrQuotaExceeded.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	maxBytes int
	closed   bool
}

func NewMemory(maxBytes int) *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrUnavailable
	}

	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Store(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrUnavailable
	}
	if m.maxBytes > 0 && len(data) > m.maxBytes {
		return fmt.Errorf("slot %s needs %d bytes, quota is %d: %w", key, len(data), m.maxBytes, ErrQuotaExceeded)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.data[key] = buf
	return nil
}

// Put writes raw bytes without the quota check. Tests use it to plant
// corrupted slot content.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
