package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/edgar"
	"holdings13f/pkg/core/holdings"
)

type staticResolver struct {
	name    string
	tickers map[string]string // cusip -> ticker
	calls   int
}

func (r *staticResolver) Name() string { return r.name }

func (r *staticResolver) Resolve(cusip, issuerName string) (string, bool) {
	r.calls++
	t, ok := r.tickers[cusip]
	return t, ok
}

type staticBatcher struct {
	name    string
	tickers map[string]string
	calls   int
}

func (b *staticBatcher) Name() string { return b.name }

func (b *staticBatcher) ResolveBatch(ctx context.Context, items []Request) map[string]string {
	b.calls++
	out := make(map[string]string)
	for _, it := range items {
		if t, ok := b.tickers[it.CUSIP]; ok {
			out[it.CUSIP] = t
		}
	}
	return out
}

func TestCascadePrecedence(t *testing.T) {
	first := &staticResolver{name: "first", tickers: map[string]string{"037833100": "AAA"}}
	second := &staticResolver{name: "second", tickers: map[string]string{"037833100": "BBB"}}
	c := NewCascade([]Resolver{first, second}, nil, cache.New[string](), zap.NewNop())

	hs := c.ResolveAll(context.Background(), []holdings.Holding{{CUSIP: "037833100"}})
	assert.Equal(t, "AAA", hs[0].Ticker, "earlier strategies win")
	assert.Equal(t, 0, second.calls, "later strategies never see a resolved holding")
}

func TestCascadeCacheShortCircuits(t *testing.T) {
	tc := cache.New[string]()
	tc.Set("037833100", "AAPL")
	r := &staticResolver{name: "r", tickers: map[string]string{"037833100": "WRONG"}}
	c := NewCascade([]Resolver{r}, nil, tc, zap.NewNop())

	hs := c.ResolveAll(context.Background(), []holdings.Holding{{CUSIP: " 037833100 "}})
	assert.Equal(t, "AAPL", hs[0].Ticker)
	assert.Equal(t, 0, r.calls)
}

func TestCascadeBatchersSeeOnlyRemainder(t *testing.T) {
	r := &staticResolver{name: "r", tickers: map[string]string{"AAA000000": "AAA"}}
	b := &staticBatcher{name: "b", tickers: map[string]string{
		"AAA000000": "NOPE",
		"BBB000000": "BBB",
	}}
	c := NewCascade([]Resolver{r}, []BatchResolver{b}, cache.New[string](), zap.NewNop())

	hs := c.ResolveAll(context.Background(), []holdings.Holding{
		{CUSIP: "AAA000000"},
		{CUSIP: "BBB000000"},
		{CUSIP: "CCC000000"},
	})
	assert.Equal(t, "AAA", hs[0].Ticker)
	assert.Equal(t, "BBB", hs[1].Ticker)
	assert.Empty(t, hs[2].Ticker, "misses stay empty, not an error")
	assert.Equal(t, 1, b.calls)
}

func TestCascadeWritesBackToCache(t *testing.T) {
	tc := cache.New[string]()
	r := &staticResolver{name: "r", tickers: map[string]string{"037833100": "AAPL"}}
	c := NewCascade([]Resolver{r}, nil, tc, zap.NewNop())

	c.ResolveAll(context.Background(), []holdings.Holding{{CUSIP: "037833100"}})

	got, ok := tc.Get("037833100")
	require.True(t, ok)
	assert.Equal(t, "AAPL", got)
}

func resolveIndex() *edgar.TickerIndex {
	return edgar.NewStaticTickerIndex([]edgar.TickerEntry{
		{CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
		{CIK: 1067983, Ticker: "BRK-B", Title: "BERKSHIRE HATHAWAY INC"},
		{CIK: 789019, Ticker: "MSFT", Title: "MICROSOFT CORP"},
	})
}

func TestIndexExactResolver(t *testing.T) {
	r := &IndexExactResolver{Index: resolveIndex()}

	ticker, ok := r.Resolve("", "APPLE INC")
	require.True(t, ok)
	assert.Equal(t, "AAPL", ticker)

	ticker, ok = r.Resolve("", "789019")
	require.True(t, ok)
	assert.Equal(t, "MSFT", ticker, "a numeric issuer field is treated as a CIK")

	_, ok = r.Resolve("", "NOT IN INDEX LLC")
	assert.False(t, ok)
}

func TestIndexSubstringResolver(t *testing.T) {
	r := &IndexSubstringResolver{Index: resolveIndex()}

	ticker, ok := r.Resolve("", "BERKSHIRE HATHAWAY")
	require.True(t, ok)
	assert.Equal(t, "BRK-B", ticker)

	_, ok = r.Resolve("", "APPL")
	assert.False(t, ok, "names shorter than six characters are skipped")
}

func TestIndexWordOverlapResolver(t *testing.T) {
	r := &IndexWordOverlapResolver{Index: resolveIndex()}

	ticker, ok := r.Resolve("", "HATHAWAY BERKSHIRE GROUP")
	require.True(t, ok)
	assert.Equal(t, "BRK-B", ticker)

	_, ok = r.Resolve("", "APPLE")
	assert.False(t, ok, "a single significant word is not enough")
}
