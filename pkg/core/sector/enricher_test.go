package sector

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/fetch"
	"holdings13f/pkg/core/holdings"
)

type fakeFactsAPI struct {
	mu       sync.Mutex
	facts    map[string]Facts
	failures map[string][]error // consumed front to back before facts are served
	calls    map[string]int
}

func newFakeFactsAPI() *fakeFactsAPI {
	return &fakeFactsAPI{
		facts:    make(map[string]Facts),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFactsAPI) Lookup(ctx context.Context, ticker string) (*Facts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ticker]++
	if errs := f.failures[ticker]; len(errs) > 0 {
		err := errs[0]
		f.failures[ticker] = errs[1:]
		return nil, err
	}
	if facts, ok := f.facts[ticker]; ok {
		return &facts, nil
	}
	return nil, errors.New("not covered")
}

func TestEnrichAllCacheHitsSkipTheAPI(t *testing.T) {
	c := cache.New[Facts]()
	c.Set("AAPL", Facts{Sector: "Technology", Industry: "Consumer Electronics"})
	api := newFakeFactsAPI()
	e := NewEnricher(api, c, zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "AAPL"}})

	assert.Equal(t, "Technology", hs[0].Sector)
	assert.Equal(t, "Consumer Electronics", hs[0].Industry)
	assert.Empty(t, api.calls)
}

func TestEnrichAllLooksUpMisses(t *testing.T) {
	api := newFakeFactsAPI()
	api.facts["MSFT"] = Facts{Sector: "Technology", Industry: "Software"}
	e := NewEnricher(api, cache.New[Facts](), zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{
		{Ticker: "msft"},
		{Ticker: ""},
	})

	assert.Equal(t, "Technology", hs[0].Sector)
	assert.Equal(t, UnknownSector, hs[1].Sector, "unresolved tickers are Unknown without a lookup")
	assert.Equal(t, 1, api.calls["MSFT"])
}

func TestEnrichAllRetriesRateLimitOnce(t *testing.T) {
	api := newFakeFactsAPI()
	api.failures["MSFT"] = []error{&fetch.StatusError{Status: http.StatusTooManyRequests}}
	api.facts["MSFT"] = Facts{Sector: "Technology"}
	e := NewEnricher(api, cache.New[Facts](), zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "MSFT"}})

	assert.Equal(t, "Technology", hs[0].Sector)
	assert.Equal(t, 2, api.calls["MSFT"])
}

func TestEnrichAllFailureBecomesUnknown(t *testing.T) {
	api := newFakeFactsAPI()
	api.failures["XXXX"] = []error{
		&fetch.StatusError{Status: http.StatusTooManyRequests},
		&fetch.StatusError{Status: http.StatusTooManyRequests},
	}
	c := cache.New[Facts]()
	e := NewEnricher(api, c, zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "XXXX"}})

	assert.Equal(t, UnknownSector, hs[0].Sector)
	assert.Equal(t, 2, api.calls["XXXX"], "a second 429 is not retried again")

	cached, ok := c.Get("XXXX")
	require.True(t, ok, "failures are cached so the ticker is not re-queried next run")
	assert.Equal(t, UnknownSector, cached.Sector)
}

func TestEnrichAllNonRateLimitErrorsDoNotRetry(t *testing.T) {
	api := newFakeFactsAPI()
	api.failures["YYYY"] = []error{errors.New("connection reset")}
	api.facts["YYYY"] = Facts{Sector: "Energy"}
	e := NewEnricher(api, cache.New[Facts](), zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "YYYY"}})

	assert.Equal(t, UnknownSector, hs[0].Sector)
	assert.Equal(t, 1, api.calls["YYYY"])
}

func TestEnrichAllTransientFailureIsNotCached(t *testing.T) {
	// The cache has no TTL: writing Unknown on a network blip would pin the
	// ticker to Unknown forever. The blip stays uncached and the next run
	// resolves normally.
	api := newFakeFactsAPI()
	api.failures["ZZZZ"] = []error{errors.New("connection reset")}
	api.facts["ZZZZ"] = Facts{Sector: "Utilities"}
	c := cache.New[Facts]()
	e := NewEnricher(api, c, zap.NewNop())

	hs := e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "ZZZZ"}})
	assert.Equal(t, UnknownSector, hs[0].Sector)
	_, ok := c.Get("ZZZZ")
	assert.False(t, ok)

	hs = e.EnrichAll(context.Background(), []holdings.Holding{{Ticker: "ZZZZ"}})
	assert.Equal(t, "Utilities", hs[0].Sector)
	assert.Equal(t, 2, api.calls["ZZZZ"])
}
