package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := New[string]()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)
	assert.Equal(t, 1, c.Len())

	assert.NoError(t, c.Persist(), "a memory-only cache persists to nowhere")
	_, ok = c.FileAge()
	assert.False(t, ok)
}

func TestFileBackedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")

	c := NewFileBacked[int](path)
	c.Set("x", 42)
	c.Set("y", 7)
	require.NoError(t, c.Persist())

	reloaded := NewFileBacked[int](path)
	require.NoError(t, reloaded.LoadFromDisk())
	assert.Equal(t, 2, reloaded.Len())
	got, ok := reloaded.Get("x")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	age, ok := reloaded.FileAge()
	require.True(t, ok)
	assert.GreaterOrEqual(t, age.Seconds(), 0.0)
}

func TestLoadFromDiskMissingFile(t *testing.T) {
	c := NewFileBacked[string](filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, c.LoadFromDisk())
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New[string]()
	c.Set("a", "1")

	snap := c.Snapshot()
	snap["a"] = "mutated"
	snap["b"] = "added"

	got, _ := c.Get("a")
	assert.Equal(t, "1", got)
	assert.Equal(t, 1, c.Len())
}
