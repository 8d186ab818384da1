package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheInMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	cache, err := NewCache("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	_, ok := cache.Get("@a/b")
	assert.False(t, ok)

	require.NoError(t, cache.Put("@a/b", []byte("content")))
	entry, ok := cache.Get("@a/b")
	require.True(t, ok)
	assert.Equal(t, []byte("content"), entry.Content)
	assert.NotEmpty(t, entry.Hash)
}

func TestCacheDiskPersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	c1, err := NewCache(dir)
	require.NoError(t, err)
	require.NoError(t, c1.Put("@a/b", []byte("disk content")))
	require.NoError(t, c1.Close())

	c2, err := NewCache(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })

	entry, ok := c2.Get("@a/b")
	require.True(t, ok)
	assert.Equal(t, []byte("disk content"), entry.Content)
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	require.NoError(t, cache.Put("@a/b", []byte("x")))
	cache.Invalidate("@a/b")

	_, ok := cache.Get("@a/b")
	assert.False(t, ok)
}
