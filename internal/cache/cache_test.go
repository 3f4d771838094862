package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGetInvalidate(t *testing.T) {
	c := New[[]string](time.Minute)
	defer c.Close()

	c.Set("a", []string{"x"})
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, got)

	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheCleanupAndClear(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("old", 1)
	now = now.Add(30 * time.Second)
	c.Set("new", 2)
	now = now.Add(45 * time.Second)

	c.cleanup()
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestKeyIsNormalized(t *testing.T) {
	assert.Equal(t, Key("Technology", "en"), Key(" technology ", "EN"))
	assert.NotEqual(t, Key("technology", "en"), Key("technology", "ja"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}
