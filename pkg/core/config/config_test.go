package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("CACHE_DIR", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".cache", "holdings13f"), cfg.CacheDir)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestCachePaths(t *testing.T) {
	cfg := &Config{CacheDir: "/tmp/hc"}
	assert.Equal(t, "/tmp/hc/ticker_index.json", cfg.TickerIndexPath())
	assert.Equal(t, "/tmp/hc/ticker_cache.json", cfg.TickerCachePath())
	assert.Equal(t, "/tmp/hc/sector_cache.json", cfg.SectorCachePath())
	assert.Equal(t, "/tmp/hc/cik_lookup.txt", cfg.RegistrantListPath())
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	data := `targets:
  - cik: "1067983"
    name: Berkshire Hathaway
  - cik: "1364742"
    name: BlackRock
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "1067983", targets[0].CIK)
	assert.Equal(t, "Berkshire Hathaway", targets[0].Name)
}

func TestLoadTargetsMissingFile(t *testing.T) {
	targets, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestLoadTargetsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets: [unclosed"), 0644))

	_, err := LoadTargets(path)
	assert.Error(t, err)
}
