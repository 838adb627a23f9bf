package edgar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/fetch"
)

const (
	cikLookupURL = "https://www.sec.gov/Archives/edgar/cik-lookup-data.txt"

	// The lookup dump only grows; a week-old copy misses at most a handful
	// of brand-new registrants.
	registrantListTTL = 7 * 24 * time.Hour
)

// Registrant is one entry from the EDGAR CIK lookup list. Unlike the ticker
// index this covers every registrant with a CIK, listed or not; most 13F
// managers (hedge funds, RIAs) have no ticker and never appear in
// company_tickers.json, so discovery scans this list instead.
type Registrant struct {
	CIK  int
	Name string
}

// RegistrantSource yields the registrant universe discovery scans over.
type RegistrantSource interface {
	Registrants() []Registrant
}

// RegistrantList loads and caches the EDGAR CIK lookup dump. The raw text
// file is cached as fetched; parsing happens on every load, which is cheap
// next to the multi-megabyte download.
type RegistrantList struct {
	client *fetch.Client
	path   string
	url    string
	log    *zap.Logger

	entries []Registrant
}

// NewRegistrantList builds a list backed by cachePath.
func NewRegistrantList(client *fetch.Client, cachePath string, log *zap.Logger) *RegistrantList {
	return &RegistrantList{
		client: client,
		path:   cachePath,
		url:    cikLookupURL,
		log:    log.Named("registrants"),
	}
}

// NewStaticRegistrantList builds a list over fixed entries, bypassing network
// and disk. Used by tests and offline tooling.
func NewStaticRegistrantList(entries []Registrant) *RegistrantList {
	return &RegistrantList{log: zap.NewNop(), entries: entries}
}

// Load populates the list, preferring the disk cache when it is fresh.
func (r *RegistrantList) Load(ctx context.Context) error {
	if info, err := os.Stat(r.path); err == nil && time.Since(info.ModTime()) < registrantListTTL {
		if entries, err := r.loadFromDisk(); err == nil {
			r.entries = entries
			r.log.Info("loaded registrant list from disk", zap.Int("entries", len(entries)))
			return nil
		}
	}

	body, err := r.client.Get(ctx, r.url, nil)
	if err != nil {
		// Stale disk data beats no data when the fetch fails.
		if entries, loadErr := r.loadFromDisk(); loadErr == nil {
			r.log.Warn("registrant list fetch failed, using stale cache", zap.Error(err))
			r.entries = entries
			return nil
		}
		return fmt.Errorf("failed to fetch cik lookup data: %w", err)
	}

	entries, err := parseCIKLookup(body)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err == nil {
		if err := os.WriteFile(r.path, body, 0644); err != nil {
			r.log.Warn("failed to cache registrant list", zap.Error(err))
		}
	}

	r.entries = entries
	r.log.Info("fetched registrant list", zap.Int("entries", len(entries)))
	return nil
}

func (r *RegistrantList) loadFromDisk() ([]Registrant, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	return parseCIKLookup(data)
}

// Registrants returns the full registrant universe.
func (r *RegistrantList) Registrants() []Registrant {
	return r.entries
}

// parseCIKLookup parses "COMPANY NAME:0001234567:" lines. Names may contain
// colons themselves, so the CIK is taken from the last field. The same CIK
// appears under every historical name a registrant has filed with; the first
// occurrence wins.
func parseCIKLookup(data []byte) ([]Registrant, error) {
	seen := make(map[int]bool)
	var entries []Registrant

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ":")
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		cik, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil || cik <= 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		if name == "" || seen[cik] {
			continue
		}
		seen[cik] = true
		entries = append(entries, Registrant{CIK: cik, Name: name})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("cik lookup data contained no parsable entries")
	}
	return entries, nil
}
