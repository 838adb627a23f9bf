// Package edgar talks to SEC EDGAR: the submissions API, the static company
// ticker index, filing index pages and 13F information-table XML.
// API documentation: https://www.sec.gov/developer
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/fetch"
)

const (
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"

	// The SEC refreshes company_tickers.json daily; anything younger than
	// this is served from disk.
	tickerIndexTTL = 24 * time.Hour
)

// TickerEntry is one registrant row from company_tickers.json.
type TickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// TickerIndex caches the SEC company list and serves lookups by ticker,
// by CIK and by normalized company name.
type TickerIndex struct {
	client *fetch.Client
	disk   *cache.Cache[TickerEntry]
	log    *zap.Logger

	// byKey holds ticker, "CIK:<cik>" and "NAME:<normalized>" keys.
	byKey   map[string]TickerEntry
	entries []TickerEntry
}

// NewTickerIndex builds an index backed by cachePath (24h TTL).
func NewTickerIndex(client *fetch.Client, cachePath string, log *zap.Logger) *TickerIndex {
	return &TickerIndex{
		client: client,
		disk:   cache.NewFileBacked[TickerEntry](cachePath),
		log:    log.Named("tickers"),
	}
}

// NewStaticTickerIndex builds an index over a fixed entry list, bypassing
// network and disk. Used by tests and offline tooling.
func NewStaticTickerIndex(entries []TickerEntry) *TickerIndex {
	t := &TickerIndex{log: zap.NewNop(), disk: cache.New[TickerEntry]()}
	t.build(entries)
	return t
}

// Load populates the index, preferring the disk cache when it is fresh.
func (t *TickerIndex) Load(ctx context.Context) error {
	if age, ok := t.disk.FileAge(); ok && age < tickerIndexTTL {
		if err := t.disk.LoadFromDisk(); err == nil && t.disk.Len() > 0 {
			t.log.Info("loaded ticker index from disk", zap.Int("entries", t.disk.Len()), zap.Duration("age", age))
			t.build(t.diskEntries())
			return nil
		}
	}

	body, err := t.client.GetJSON(ctx, companyTickersURL)
	if err != nil {
		// Stale disk data beats no data when the fetch fails.
		if loadErr := t.disk.LoadFromDisk(); loadErr == nil && t.disk.Len() > 0 {
			t.log.Warn("ticker index fetch failed, using stale cache", zap.Error(err))
			t.build(t.diskEntries())
			return nil
		}
		return fmt.Errorf("failed to fetch company tickers: %w", err)
	}

	// Response shape: {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
	var mapping map[string]TickerEntry
	if err := json.Unmarshal(body, &mapping); err != nil {
		return fmt.Errorf("failed to parse company tickers: %w", err)
	}

	entries := make([]TickerEntry, 0, len(mapping))
	for _, e := range mapping {
		entries = append(entries, e)
		t.disk.Set(e.Ticker, e)
	}
	if err := t.disk.Persist(); err != nil {
		t.log.Warn("failed to persist ticker index", zap.Error(err))
	}

	t.build(entries)
	t.log.Info("fetched ticker index", zap.Int("entries", len(entries)))
	return nil
}

func (t *TickerIndex) diskEntries() []TickerEntry {
	snap := t.disk.Snapshot()
	entries := make([]TickerEntry, 0, len(snap))
	for _, e := range snap {
		entries = append(entries, e)
	}
	return entries
}

func (t *TickerIndex) build(entries []TickerEntry) {
	t.entries = entries
	t.byKey = make(map[string]TickerEntry, len(entries)*3)
	for _, e := range entries {
		if e.Ticker == "" {
			continue
		}
		t.byKey[e.Ticker] = e
		cikKey := fmt.Sprintf("CIK:%d", e.CIK)
		if _, exists := t.byKey[cikKey]; !exists {
			// First listing wins; secondary share classes keep their ticker key.
			t.byKey[cikKey] = e
		}
		nameKey := "NAME:" + NormalizeCompanyName(e.Title)
		if _, exists := t.byKey[nameKey]; !exists {
			t.byKey[nameKey] = e
		}
	}
}

// ByTicker looks a registrant up by its exact ticker.
func (t *TickerIndex) ByTicker(ticker string) (TickerEntry, bool) {
	e, ok := t.byKey[strings.ToUpper(strings.TrimSpace(ticker))]
	return e, ok
}

// ByCIK looks a registrant up by CIK.
func (t *TickerIndex) ByCIK(cik int) (TickerEntry, bool) {
	e, ok := t.byKey[fmt.Sprintf("CIK:%d", cik)]
	return e, ok
}

// ByName looks a registrant up by normalized company name.
func (t *TickerIndex) ByName(name string) (TickerEntry, bool) {
	e, ok := t.byKey["NAME:"+NormalizeCompanyName(name)]
	return e, ok
}

// Entries returns the full listed-issuer list (the fuzzy name resolvers
// iterate it).
func (t *TickerIndex) Entries() []TickerEntry {
	return t.entries
}

// abbreviations are expanded before suffix stripping so "XYZ HLDGS INC"
// and "XYZ Holdings, Inc." normalize identically.
var abbreviations = map[string]string{
	"HLDGS":   "HOLDINGS",
	"HLDG":    "HOLDING",
	"MFG":     "MANUFACTURING",
	"SVCS":    "SERVICES",
	"SVC":     "SERVICE",
	"INTL":    "INTERNATIONAL",
	"TECHS":   "TECHNOLOGIES",
	"FINL":    "FINANCIAL",
	"CMNTY":   "COMMUNITY",
	"BANCORP": "BANCORPORATION",
	"RES":     "RESOURCES",
	"GRP":     "GROUP",
	"PPTYS":   "PROPERTIES",
	"CTRS":    "CENTERS",
}

var legalSuffixes = []string{
	"INCORPORATED", "CORPORATION", "COMPANY", "LIMITED",
	"INC", "CORP", "LLC", "LTD", "PLC", "LP", "CO", "SA", "NV", "AG", "TRUST",
}

var shareClassRe = regexp.MustCompile(`\b(?:CL|CLASS)\s+[A-C]\b|\bSER\s+[A-Z]\b|\bADR\b|\bADS\b|\bCOM\b|\bNEW\b`)
var nonAlnumRe = regexp.MustCompile(`[^A-Z0-9 ]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeCompanyName canonicalizes an issuer or registrant name for index
// matching: uppercase, "&" to "AND", abbreviation expansion, punctuation
// removal, share-class and legal-suffix stripping, whitespace collapse.
func NormalizeCompanyName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", " AND ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = shareClassRe.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	for i, w := range words {
		if full, ok := abbreviations[w]; ok {
			words[i] = full
		}
	}

	// Strip trailing legal suffixes, repeatedly ("XYZ Holdings Corp Ltd").
	for len(words) > 1 {
		last := words[len(words)-1]
		stripped := false
		for _, suffix := range legalSuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	return spaceRe.ReplaceAllString(strings.Join(words, " "), " ")
}
