// Package config gathers environment configuration and the hand-maintained
// mandatory-target list.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Config is the pipeline's environment-derived configuration. godotenv is
// loaded in cmd before this is read.
type Config struct {
	DatabaseURL    string
	GeminiAPIKey   string
	OpenFIGIAPIKey string
	FactsAPIURL    string
	FactsAPIKey    string
	CacheDir       string
}

// FromEnv reads configuration from the environment. Nothing here is
// required up front: store.InitDB enforces DATABASE_URL when the command
// actually touches the database, and missing optional keys degrade the
// matching cascade step instead of failing.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		OpenFIGIAPIKey: os.Getenv("OPENFIGI_API_KEY"),
		FactsAPIURL:    os.Getenv("FACTS_API_URL"),
		FactsAPIKey:    os.Getenv("FACTS_API_KEY"),
		CacheDir:       os.Getenv("CACHE_DIR"),
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".cache", "holdings13f")
	}
	return cfg, nil
}

// TickerIndexPath is the on-disk location of the SEC ticker index cache.
func (c *Config) TickerIndexPath() string {
	return filepath.Join(c.CacheDir, "ticker_index.json")
}

// TickerCachePath is the resolved CUSIP-to-ticker cache file.
func (c *Config) TickerCachePath() string {
	return filepath.Join(c.CacheDir, "ticker_cache.json")
}

// SectorCachePath is the per-ticker sector facts cache file.
func (c *Config) SectorCachePath() string {
	return filepath.Join(c.CacheDir, "sector_cache.json")
}

// RegistrantListPath is the cached EDGAR CIK lookup dump that discovery
// scans.
func (c *Config) RegistrantListPath() string {
	return filepath.Join(c.CacheDir, "cik_lookup.txt")
}

// Target is one mandatory company the pipeline always processes first.
type Target struct {
	CIK  string `yaml:"cik"`
	Name string `yaml:"name"`
}

// targetsFile is the YAML shape of the mandatory-targets list.
type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads the mandatory-target list. A missing file is not an
// error: the run simply starts straight at discovery.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}
	return f.Targets, nil
}
