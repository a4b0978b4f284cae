package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_expiry(t *testing.T) {
	now := time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := NewCache(5*time.Minute, clock)

	cache.Set("a", 1)
	cache.SetTTL("b", 2, time.Minute)

	if v, ok := cache.Get("a"); assert.True(t, ok) {
		assert.Equal(t, 1, v)
	}
	if v, ok := cache.Get("b"); assert.True(t, ok) {
		assert.Equal(t, 2, v)
	}

	// "b" expires first
	now = now.Add(2 * time.Minute)
	_, ok := cache.Get("b")
	assert.False(t, ok)
	_, ok = cache.Get("a")
	assert.True(t, ok)

	// both gone
	now = now.Add(10 * time.Minute)
	_, ok = cache.Get("a")
	assert.False(t, ok)
}

func TestCache_deleteExpired(t *testing.T) {
	now := time.Date(2021, time.March, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := NewCache(time.Minute, clock)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.SetTTL("c", 3, time.Hour)

	assert.Equal(t, 0, cache.DeleteExpired())

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 2, cache.DeleteExpired())

	_, ok := cache.Get("c")
	assert.True(t, ok)
}

func TestCache_deleteAndClear(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("a", 1)
	cache.Set("b", 2)

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Clear()
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "dashboard:student:42", CacheKey("dashboard", "student", "42"))
}
