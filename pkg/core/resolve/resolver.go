// Package resolve maps 13F holdings to ticker symbols through an ordered
// cascade of strategies: the SEC reference index (exact, substring, word
// overlap), a batched CUSIP mapping API, and finally a capped AI completion.
// Resolved tickers are cached by normalized CUSIP so repeat runs skip the
// cascade entirely.
package resolve

import (
	"context"

	"go.uber.org/zap"

	"holdings13f/pkg/core/cache"
	"holdings13f/pkg/core/holdings"
)

// Resolver attempts to resolve a single holding to a ticker. Returning
// ok=false passes the holding to the next strategy.
type Resolver interface {
	Name() string
	Resolve(cusip, issuerName string) (ticker string, ok bool)
}

// BatchResolver resolves many unresolved holdings at once (the mapping API
// and the AI fallback work on the remainder of the cascade, not per item).
type BatchResolver interface {
	Name() string
	ResolveBatch(ctx context.Context, items []Request) map[string]string // cusip -> ticker
}

// Request identifies one unresolved holding.
type Request struct {
	CUSIP      string
	IssuerName string
}

// Cascade runs the resolver chain over a filing's holdings.
type Cascade struct {
	resolvers []Resolver
	batchers  []BatchResolver
	cache     *cache.Cache[string]
	log       *zap.Logger
}

// NewCascade builds the cascade in fixed precedence order. tickerCache maps
// normalized CUSIP to ticker and is injected by the orchestrator.
func NewCascade(resolvers []Resolver, batchers []BatchResolver, tickerCache *cache.Cache[string], log *zap.Logger) *Cascade {
	return &Cascade{
		resolvers: resolvers,
		batchers:  batchers,
		cache:     tickerCache,
		log:       log.Named("resolve"),
	}
}

// ResolveAll fills in tickers on hs in place-order and returns the updated
// slice. Precedence: cache, then each per-item resolver in order, then each
// batch resolver over whatever remains. Misses are left empty (ticker
// undefined is not an error).
func (c *Cascade) ResolveAll(ctx context.Context, hs []holdings.Holding) []holdings.Holding {
	var unresolved []int

	for i := range hs {
		cusip := holdings.NormalizeCUSIP(hs[i].CUSIP)
		if ticker, ok := c.cache.Get(cusip); ok && ticker != "" {
			hs[i].Ticker = ticker
			continue
		}

		resolved := false
		for _, r := range c.resolvers {
			if ticker, ok := r.Resolve(cusip, hs[i].IssuerName); ok {
				hs[i].Ticker = ticker
				c.cache.Set(cusip, ticker)
				c.log.Debug("resolved ticker",
					zap.String("cusip", cusip),
					zap.String("ticker", ticker),
					zap.String("strategy", r.Name()),
				)
				resolved = true
				break
			}
		}
		if !resolved {
			unresolved = append(unresolved, i)
		}
	}

	for _, b := range c.batchers {
		if len(unresolved) == 0 {
			break
		}

		requests := make([]Request, 0, len(unresolved))
		for _, i := range unresolved {
			requests = append(requests, Request{
				CUSIP:      holdings.NormalizeCUSIP(hs[i].CUSIP),
				IssuerName: hs[i].IssuerName,
			})
		}

		results := b.ResolveBatch(ctx, requests)
		var still []int
		for _, i := range unresolved {
			cusip := holdings.NormalizeCUSIP(hs[i].CUSIP)
			if ticker, ok := results[cusip]; ok && ticker != "" {
				hs[i].Ticker = ticker
				c.cache.Set(cusip, ticker)
			} else {
				still = append(still, i)
			}
		}
		c.log.Info("batch resolution pass complete",
			zap.String("strategy", b.Name()),
			zap.Int("resolved", len(unresolved)-len(still)),
			zap.Int("remaining", len(still)),
		)
		unresolved = still
	}

	return hs
}
