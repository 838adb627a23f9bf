// Package sector resolves tickers to sector/industry classifications through
// an external company-facts API, backed by a persistent cache. Lookups run
// with bounded two-level concurrency and explicit pacing; the cache file is
// rewritten wholesale at the end of every run.
package sector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/fetch"
	"holdings13f/pkg/core/holdings"
)

const (
	factsBatchSize = 50

	// 2 batches in flight x 3 requests per batch = 6 effective lookups.
	maxConcurrentBatches  = 2
	maxRequestsPerBatch   = 3
	rateLimitRetryBackoff = 2 * time.Second

	// UnknownSector marks holdings the facts API could not classify.
	UnknownSector = "Unknown"
)

// Facts is the cached classification for one ticker.
type Facts struct {
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap,omitempty"`
}

// FactsAPI fetches classification facts for a single ticker. The production
// implementation is a thin HTTP client; tests swap in a fake.
type FactsAPI interface {
	Lookup(ctx context.Context, ticker string) (*Facts, error)
}

// Enricher coordinates the cache split and the bounded-concurrency lookups.
type Enricher struct {
	api   FactsAPI
	cache *cache.Cache[Facts]
	log   *zap.Logger
}

// NewEnricher builds an Enricher around an injected facts cache (keyed by
// ticker, no TTL; refreshed only by explicit re-run).
func NewEnricher(api FactsAPI, factsCache *cache.Cache[Facts], log *zap.Logger) *Enricher {
	return &Enricher{api: api, cache: factsCache, log: log.Named("sector")}
}

// EnrichAll fills Sector/Industry on every holding with a resolved ticker.
// Holdings are split into cache hits (served immediately) and lookups, which
// run in chunks of 50 with bounded batch- and request-level concurrency.
// The full cache is persisted once at the end; a persist failure is logged,
// not fatal, since the data is already applied in memory.
func (e *Enricher) EnrichAll(ctx context.Context, hs []holdings.Holding) []holdings.Holding {
	var needLookup []int
	tickerSet := make(map[string]bool)

	for i := range hs {
		ticker := strings.ToUpper(strings.TrimSpace(hs[i].Ticker))
		if ticker == "" {
			hs[i].Sector = UnknownSector
			continue
		}
		if facts, ok := e.cache.Get(ticker); ok {
			applyFacts(&hs[i], facts)
			continue
		}
		needLookup = append(needLookup, i)
		tickerSet[ticker] = true
	}

	if len(tickerSet) > 0 {
		e.lookupAll(ctx, tickerSet)

		for _, i := range needLookup {
			ticker := strings.ToUpper(strings.TrimSpace(hs[i].Ticker))
			if facts, ok := e.cache.Get(ticker); ok {
				applyFacts(&hs[i], facts)
			} else {
				hs[i].Sector = UnknownSector
			}
		}
	}

	if err := e.cache.Persist(); err != nil {
		e.log.Warn("failed to persist sector cache", zap.Error(err))
	}

	return hs
}

func applyFacts(h *holdings.Holding, f Facts) {
	h.Sector = f.Sector
	if h.Sector == "" {
		h.Sector = UnknownSector
	}
	h.Industry = f.Industry
}

// lookupAll fans the unique tickers out across batches. Batch-level and
// request-level concurrency are both semaphore-bounded.
func (e *Enricher) lookupAll(ctx context.Context, tickerSet map[string]bool) {
	tickers := make([]string, 0, len(tickerSet))
	for t := range tickerSet {
		tickers = append(tickers, t)
	}

	e.log.Info("sector lookups required", zap.Int("tickers", len(tickers)))

	batchSem := semaphore.NewWeighted(maxConcurrentBatches)
	var wg sync.WaitGroup

	for start := 0; start < len(tickers); start += factsBatchSize {
		end := start + factsBatchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[start:end]

		if err := batchSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			defer batchSem.Release(1)
			e.lookupBatch(ctx, batch)
		}(batch)
	}

	wg.Wait()
}

func (e *Enricher) lookupBatch(ctx context.Context, tickers []string) {
	reqSem := semaphore.NewWeighted(maxRequestsPerBatch)
	var wg sync.WaitGroup

	for _, ticker := range tickers {
		if err := reqSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer reqSem.Release(1)

			facts, err := e.lookupWithRetry(ctx, ticker)
			if err != nil {
				e.log.Debug("sector lookup failed", zap.String("ticker", ticker), zap.Error(err))
				// The cache has no TTL, so only a definitive refusal (a 429
				// that survived its retry) is cached as Unknown. Transient
				// failures stay uncached and are retried next run.
				if fetch.IsRateLimited(err) {
					e.cache.Set(ticker, Facts{Sector: UnknownSector})
				}
				return
			}
			e.cache.Set(ticker, *facts)
		}(ticker)
	}

	wg.Wait()
}

// lookupWithRetry gives a 429 exactly one more chance after a fixed backoff.
func (e *Enricher) lookupWithRetry(ctx context.Context, ticker string) (*Facts, error) {
	facts, err := e.api.Lookup(ctx, ticker)
	if err == nil {
		return facts, nil
	}
	if !fetch.IsRateLimited(err) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(rateLimitRetryBackoff):
	}
	return e.api.Lookup(ctx, ticker)
}

// HTTPFactsAPI implements FactsAPI against a company-facts endpoint that
// serves JSON per ticker.
type HTTPFactsAPI struct {
	Client  *fetch.Client
	BaseURL string
	APIKey  string
}

// Lookup fetches facts for one ticker. A 404 maps to an Unknown sector
// rather than an error; the security simply is not covered.
func (a *HTTPFactsAPI) Lookup(ctx context.Context, ticker string) (*Facts, error) {
	url := fmt.Sprintf("%s/company/facts?symbol=%s", strings.TrimRight(a.BaseURL, "/"), ticker)
	headers := map[string]string{"Accept": "application/json"}
	if a.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.APIKey
	}

	body, err := a.Client.Get(ctx, url, headers)
	if err != nil {
		if fetch.IsNotFound(err) {
			return &Facts{Sector: UnknownSector}, nil
		}
		return nil, err
	}

	var resp struct {
		Sector    string  `json:"sector"`
		Industry  string  `json:"industry"`
		MarketCap float64 `json:"marketCap"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse facts response for %s: %w", ticker, err)
	}

	return &Facts{Sector: resp.Sector, Industry: resp.Industry, MarketCap: resp.MarketCap}, nil
}
