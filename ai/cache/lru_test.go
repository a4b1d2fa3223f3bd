package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBasics(t *testing.T) {
	c := NewLRU[string, int](4, time.Minute)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.True(t, c.Contains("b"))
	assert.True(t, c.Remove("b"))
	assert.False(t, c.Contains("b"))
	assert.False(t, c.Remove("b"))
	assert.Equal(t, 1, c.Len())
}

func TestLRUEvictsOldestFirst(t *testing.T) {
	c := NewLRU[string, int](3, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Touch "a" so "b" is the least recently used.
	_, _ = c.Get("a")
	c.Set("d", 4, 0)

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.True(t, c.Contains("d"))
	assert.Equal(t, 3, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[string, int](4, time.Minute)
	c.Set("gone", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("gone")
	assert.False(t, ok)
	assert.False(t, c.Contains("gone"))
}

func TestCheckAndSet(t *testing.T) {
	c := NewLRU[string, struct{}](8, time.Minute)

	assert.False(t, c.CheckAndSet("fp", struct{}{}, 0), "first insert reports absent")
	assert.True(t, c.CheckAndSet("fp", struct{}{}, 0), "second call reports present")

	// An expired entry behaves like an absent one.
	assert.False(t, c.CheckAndSet("short", struct{}{}, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.CheckAndSet("short", struct{}{}, time.Minute))
	assert.True(t, c.CheckAndSet("short", struct{}{}, time.Minute))
}

func TestLRUCapacityBound(t *testing.T) {
	c := NewLRU[string, int](10, time.Minute)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
	}
	assert.Equal(t, 10, c.Len())
}
