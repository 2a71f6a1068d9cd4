package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordID(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	id := NewRecordID("pos", now)
	assert.True(t, strings.HasPrefix(id, "pos_1700000000123_"), id)
	assert.Len(t, id, len("pos_1700000000123_")+12)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewRecordID("var", now)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestTargetKey(t *testing.T) {
	a := TargetKey("Tesla", "best EVs", "tesla.com")
	b := TargetKey("tesla", "BEST EVS", "Tesla.com")
	c := TargetKey("Tesla", "best EV", "stesla.com")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
