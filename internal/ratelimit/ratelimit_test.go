package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerModelLimit(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{"fast": 2}, 0)

	require.NoError(t, rl.Use("fast"))
	require.NoError(t, rl.Use("fast"))
	assert.False(t, rl.CanUse("fast"))
	assert.Error(t, rl.Use("fast"))

	// unlimited model keeps working
	assert.NoError(t, rl.Use("capable"))
}

func TestTotalLimit(t *testing.T) {
	rl := NewAIRateLimiter(nil, 2)
	require.NoError(t, rl.Use("a"))
	require.NoError(t, rl.Use("b"))
	assert.Error(t, rl.Use("c"))
	assert.Equal(t, 2, rl.GetStats()["total_used"])
}

func TestDailyReset(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{"fast": 1}, 0)
	now := time.Now()
	rl.now = func() time.Time { return now }

	require.NoError(t, rl.Use("fast"))
	assert.False(t, rl.CanUse("fast"))

	now = now.Add(25 * time.Hour)
	assert.True(t, rl.CanUse("fast"))
	assert.NoError(t, rl.Use("fast"))
}
