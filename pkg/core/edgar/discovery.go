package edgar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	discoveryBatchSize  = 50
	discoveryBatchSleep = 2 * time.Second

	// One NextBatch call scans at most this many batches. A sparse stretch
	// of the universe then comes back as an empty result the caller can
	// count against its stop condition, instead of a single call serially
	// scanning every remaining registrant.
	maxBatchesPerCall = 2

	// A registrant qualifies as an active 13F filer with at least this many
	// 13F-HR/13F-HR/A filings in the trailing two years.
	minRecentFilings = 2
)

// DiscoveredFiler is one qualifying registrant.
type DiscoveredFiler struct {
	CIK  string
	Name string
}

// SubmissionsFetcher is the one submissions-API read discovery needs.
type SubmissionsFetcher interface {
	Fetch(ctx context.Context, cik string) (*CompanySubmissions, error)
}

// Discovery incrementally scans the registrant universe for active 13F
// filers. State (offset, seen CIKs) is process-scoped so repeated calls in
// one campaign never re-check the same registrant.
type Discovery struct {
	source RegistrantSource
	subs   SubmissionsFetcher
	log    *zap.Logger

	// SEC fair access: one submissions check in flight at a time, across
	// the whole batch.
	sem *semaphore.Weighted

	offset     int
	seenCIKs   map[string]bool
	now        func() time.Time
	batchSleep time.Duration
}

// NewDiscovery builds a Discovery over a loaded registrant universe. Most
// 13F managers are unlisted, so the source must cover all EDGAR registrants,
// not just issuers with tickers.
func NewDiscovery(source RegistrantSource, subs SubmissionsFetcher, log *zap.Logger) *Discovery {
	return &Discovery{
		source:     source,
		subs:       subs,
		log:        log.Named("discovery"),
		sem:        semaphore.NewWeighted(1),
		seenCIKs:   make(map[string]bool),
		now:        time.Now,
		batchSleep: discoveryBatchSleep,
	}
}

// MarkSeen records CIKs that should never be re-checked (e.g. mandatory
// targets already processed).
func (d *Discovery) MarkSeen(ciks ...string) {
	for _, cik := range ciks {
		d.seenCIKs[cik] = true
	}
}

// Exhausted reports whether the registrant universe has been fully scanned.
func (d *Discovery) Exhausted() bool {
	return d.offset >= len(d.source.Registrants())
}

// NextBatch scans forward from the current offset until it has found `count`
// qualifying filers, scanned maxBatchesPerCall batches, or exhausted the
// universe. An empty, non-exhausted return means the scanned stretch held no
// active filer; the caller decides how many such stretches to tolerate.
// Registrants are checked in batches of 50 with a sleep in between; each
// check hits the submissions API under the shared single-slot semaphore.
func (d *Discovery) NextBatch(ctx context.Context, count int) ([]DiscoveredFiler, error) {
	entries := d.sortedEntries()
	var found []DiscoveredFiler

	for scanned := 0; scanned < maxBatchesPerCall && d.offset < len(entries) && len(found) < count; scanned++ {
		end := d.offset + discoveryBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[d.offset:end]
		d.offset = end

		hits, err := d.checkBatch(ctx, batch)
		if err != nil {
			return found, err
		}
		found = append(found, hits...)

		d.log.Info("discovery batch scanned",
			zap.Int("offset", d.offset),
			zap.Int("batch_hits", len(hits)),
			zap.Int("total_found", len(found)),
		)

		if scanned+1 < maxBatchesPerCall && d.offset < len(entries) && len(found) < count {
			select {
			case <-ctx.Done():
				return found, ctx.Err()
			case <-time.After(d.batchSleep):
			}
		}
	}

	return found, nil
}

func (d *Discovery) sortedEntries() []Registrant {
	entries := d.source.Registrants()
	sorted := make([]Registrant, len(entries))
	copy(sorted, entries)
	// Stable scan order across calls; the offset is meaningless otherwise.
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CIK < sorted[j].CIK })
	return sorted
}

func (d *Discovery) checkBatch(ctx context.Context, batch []Registrant) ([]DiscoveredFiler, error) {
	var hits []DiscoveredFiler

	for _, entry := range batch {
		cik := fmt.Sprintf("%d", entry.CIK)
		if d.seenCIKs[cik] {
			continue
		}
		d.seenCIKs[cik] = true

		if err := d.sem.Acquire(ctx, 1); err != nil {
			return hits, err
		}
		subs, err := d.subs.Fetch(ctx, cik)
		d.sem.Release(1)

		if err != nil {
			d.log.Debug("discovery check failed", zap.String("cik", cik), zap.Error(err))
			continue
		}

		if CountRecent13F(subs, d.now()) >= minRecentFilings {
			hits = append(hits, DiscoveredFiler{CIK: cik, Name: subs.Name})
		}
	}

	return hits, nil
}
