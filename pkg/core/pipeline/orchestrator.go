// Package pipeline sequences the 13F processing stages per company and
// across companies: discovery, fetch/parse, dedup, ticker resolution, sector
// enrichment, quarter-over-quarter diff, persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"holdings13f/pkg/core/config"
	"holdings13f/pkg/core/edgar"
	"holdings13f/pkg/core/holdings"
	"holdings13f/pkg/core/store"
)

// FilingState tracks a filing through the pipeline. Failed is reachable from
// every state after Discovered; Persisted is the terminal success.
type FilingState string

const (
	StateDiscovered   FilingState = "Discovered"
	StateFetched      FilingState = "Fetched"
	StateParsed       FilingState = "Parsed"
	StateDeduplicated FilingState = "Deduplicated"
	StateEnriched     FilingState = "Enriched"
	StateDiffed       FilingState = "Diffed"
	StatePersisted    FilingState = "Persisted"
	StateFailed       FilingState = "Failed"
)

// FilingLister returns a registrant's 13F filings, oldest first.
type FilingLister interface {
	ThirteenFFilings(ctx context.Context, cik string, startYear, endYear int) (name string, filings []edgar.Filing, err error)
}

// DocumentLocator finds a filing's XML documents on its index page.
type DocumentLocator interface {
	Locate(ctx context.Context, cik, accession string) (*edgar.FilingDocuments, error)
}

// FilingParser fetches and normalizes a filing's XML documents.
type FilingParser interface {
	FetchAndParse(ctx context.Context, docs *edgar.FilingDocuments, filingDate time.Time) (*edgar.FilingContent, error)
}

// TickerResolver runs the resolution cascade over deduplicated holdings.
type TickerResolver interface {
	ResolveAll(ctx context.Context, hs []holdings.Holding) []holdings.Holding
}

// SectorEnricher fills sector facts on resolved holdings.
type SectorEnricher interface {
	EnrichAll(ctx context.Context, hs []holdings.Holding) []holdings.Holding
}

// Discoverer scans the registrant universe for active 13F filers.
type Discoverer interface {
	NextBatch(ctx context.Context, count int) ([]edgar.DiscoveredFiler, error)
	Exhausted() bool
	MarkSeen(ciks ...string)
}

const (
	// Discovery requests this many new filers per incremental batch.
	discoveryRequestSize = 10

	// Discovery stops after this many consecutive batches with no new filer.
	maxEmptyBatches = 3
)

// Orchestrator wires the stages together. Company-level processing is
// strictly serial (SEC fair access); filing-level processing within a
// company is strictly sequential because each diff needs the prior quarter
// persisted first.
type Orchestrator struct {
	lister   FilingLister
	locator  DocumentLocator
	parser   FilingParser
	resolver TickerResolver
	enricher SectorEnricher
	discover Discoverer

	filers   store.FilerRepository
	holdings store.HoldingsRepository

	log *zap.Logger
	now func() time.Time
}

// NewOrchestrator builds an Orchestrator with all stage dependencies.
func NewOrchestrator(
	lister FilingLister,
	locator DocumentLocator,
	parser FilingParser,
	resolver TickerResolver,
	enricher SectorEnricher,
	discover Discoverer,
	filers store.FilerRepository,
	holdingsRepo store.HoldingsRepository,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		lister:   lister,
		locator:  locator,
		parser:   parser,
		resolver: resolver,
		enricher: enricher,
		discover: discover,
		filers:   filers,
		holdings: holdingsRepo,
		log:      log.Named("pipeline"),
		now:      time.Now,
	}
}

// RunStats is the aggregate outcome of ProcessAllCompanies.
type RunStats struct {
	RunID            string `json:"run_id"`
	Total            int    `json:"total"`
	Succeeded        int    `json:"succeeded"`
	Failed           int    `json:"failed"`
	MandatoryTargets int    `json:"mandatory_targets"`
	DiscoveredFilers int    `json:"discovered_filers"`
}

// RunResult wraps RunStats with the outcome surface collaborators consume.
type RunResult struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Stats     RunStats         `json:"stats"`
	Companies []CompanyOutcome `json:"companies"`
	Duration  time.Duration    `json:"duration"`
}

// CompanyOutcome records one company's result for the run report.
type CompanyOutcome struct {
	CIK       string `json:"cik"`
	Name      string `json:"name"`
	Mandatory bool   `json:"mandatory"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Err       string `json:"error,omitempty"`
}

// CompanyResult is the outcome of ProcessSingleCompany.
type CompanyResult struct {
	Processed int             `json:"processed"`
	Skipped   int             `json:"skipped"`
	Company   *holdings.Filer `json:"company"`
}

// ProcessAllCompanies processes the mandatory targets serially, then drains
// incremental discovery batches until three consecutive batches yield no new
// filer or the registrant universe is exhausted. Per-company failures are
// logged and counted, never propagated.
func (o *Orchestrator) ProcessAllCompanies(ctx context.Context, startYear, endYear int, targets []config.Target) *RunResult {
	start := o.now()
	result := &RunResult{
		Stats: RunStats{RunID: uuid.NewString()},
	}
	log := o.log.With(zap.String("run_id", result.Stats.RunID))
	log.Info("starting full pipeline run",
		zap.Int("start_year", startYear),
		zap.Int("end_year", endYear),
		zap.Int("mandatory_targets", len(targets)),
	)

	// 1. Mandatory targets first, serial.
	for _, target := range targets {
		outcome := o.runCompany(ctx, target.CIK, startYear, endYear, target.Name, true)
		result.Companies = append(result.Companies, outcome)
		result.Stats.MandatoryTargets++
		o.tally(&result.Stats, outcome)
		o.discover.MarkSeen(target.CIK)
	}

	// 2. Incremental discovery; each batch is processed before the next is
	// requested.
	emptyBatches := 0
	for emptyBatches < maxEmptyBatches && !o.discover.Exhausted() {
		batch, err := o.discover.NextBatch(ctx, discoveryRequestSize)
		if err != nil {
			log.Warn("discovery batch failed", zap.Error(err))
			break
		}
		if len(batch) == 0 {
			emptyBatches++
			log.Info("empty discovery batch", zap.Int("consecutive", emptyBatches))
			continue
		}
		emptyBatches = 0

		for _, filer := range batch {
			outcome := o.runCompany(ctx, filer.CIK, startYear, endYear, filer.Name, false)
			result.Companies = append(result.Companies, outcome)
			result.Stats.DiscoveredFilers++
			o.tally(&result.Stats, outcome)
		}
	}

	result.Duration = o.now().Sub(start)
	result.Success = result.Stats.Failed < result.Stats.Total || result.Stats.Total == 0
	result.Message = fmt.Sprintf("processed %d companies (%d succeeded, %d failed) in %s",
		result.Stats.Total, result.Stats.Succeeded, result.Stats.Failed, result.Duration.Round(time.Second))
	log.Info("pipeline run complete", zap.String("message", result.Message))
	return result
}

func (o *Orchestrator) tally(stats *RunStats, outcome CompanyOutcome) {
	stats.Total++
	if outcome.Err == "" {
		stats.Succeeded++
	} else {
		stats.Failed++
	}
}

func (o *Orchestrator) runCompany(ctx context.Context, cik string, startYear, endYear int, name string, mandatory bool) CompanyOutcome {
	outcome := CompanyOutcome{CIK: cik, Name: name, Mandatory: mandatory}

	res, err := o.ProcessSingleCompany(ctx, cik, startYear, endYear, name)
	if err != nil {
		o.log.Error("company processing failed", zap.String("cik", cik), zap.Error(err))
		outcome.Err = err.Error()
		return outcome
	}

	outcome.Processed = res.Processed
	outcome.Skipped = res.Skipped
	if res.Company != nil {
		outcome.Name = res.Company.FilerName
	}
	return outcome
}

// ProcessSingleCompany runs the full stage sequence for one filer. Filings
// are processed strictly oldest to newest; a failed filing is logged and
// skipped without aborting the rest.
func (o *Orchestrator) ProcessSingleCompany(ctx context.Context, cik string, startYear, endYear int, knownName string) (*CompanyResult, error) {
	log := o.log.With(zap.String("cik", cik))

	name, filings, err := o.lister.ThirteenFFilings(ctx, cik, startYear, endYear)
	if err != nil {
		return nil, fmt.Errorf("failed to list filings for %s: %w", cik, err)
	}
	if name == "" {
		name = knownName
	}
	log.Info("filings listed", zap.String("name", name), zap.Int("count", len(filings)))

	filer, err := o.loadOrCreateFiler(ctx, cik, name)
	if err != nil {
		return nil, err
	}

	result := &CompanyResult{Company: filer}

	for _, filing := range filings {
		if filer.HasAccession(filing.AccessionNumber) {
			log.Debug("skipping recorded accession", zap.String("accession", filing.AccessionNumber))
			result.Skipped++
			continue
		}

		if err := o.processFiling(ctx, filer, filing); err != nil {
			if errors.Is(err, errQuarterExists) {
				result.Skipped++
				continue
			}
			log.Warn("filing processing failed, skipping",
				zap.String("accession", filing.AccessionNumber),
				zap.String("state", string(stateOf(err))),
				zap.Error(err),
			)
			continue
		}
		result.Processed++
	}

	return result, nil
}

func (o *Orchestrator) loadOrCreateFiler(ctx context.Context, cik, name string) (*holdings.Filer, error) {
	filer, err := o.filers.Load(ctx, cik)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load filer %s: %w", cik, err)
		}
		filer = &holdings.Filer{CIK: cik, FilerName: name}
	}
	if filer.FilerName == "" {
		filer.FilerName = name
	}
	return filer, nil
}

// errQuarterExists marks the idempotent skip path.
var errQuarterExists = errors.New("quarter already recorded")

// stageError carries the state the filing failed in.
type stageError struct {
	state FilingState
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.state, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func failAt(state FilingState, err error) error {
	return &stageError{state: state, err: err}
}

func stateOf(err error) FilingState {
	var se *stageError
	if errors.As(err, &se) {
		return se.state
	}
	return StateFailed
}

func (o *Orchestrator) processFiling(ctx context.Context, filer *holdings.Filer, filing edgar.Filing) error {
	log := o.log.With(
		zap.String("cik", filer.CIK),
		zap.String("accession", filing.AccessionNumber),
	)

	quarter := holdings.QuarterKey(filing.PeriodOfReport)
	if filer.HasQuarter(quarter) {
		log.Debug("quarter already recorded", zap.String("quarter", quarter))
		return errQuarterExists
	}

	// Discovered -> Fetched
	docs, err := o.locator.Locate(ctx, filer.CIK, filing.AccessionNumber)
	if err != nil {
		return failAt(StateDiscovered, err)
	}

	// Fetched -> Parsed
	content, err := o.parser.FetchAndParse(ctx, docs, filing.FilingDate)
	if err != nil {
		return failAt(StateFetched, err)
	}
	if content.FilerName != "" && filer.FilerName == "" {
		filer.FilerName = content.FilerName
	}

	// Parsed -> Deduplicated
	deduped := holdings.Deduplicate(content.Holdings)

	// Deduplicated -> Enriched
	resolved := o.resolver.ResolveAll(ctx, deduped)
	enriched := o.enricher.EnrichAll(ctx, resolved)

	// Enriched -> Diffed. The previous quarter is whatever was persisted
	// last for this filer; filings run oldest to newest so that is always
	// the immediately preceding processed quarter.
	previous, err := o.loadPreviousQuarter(ctx, filer)
	if err != nil {
		return failAt(StateEnriched, err)
	}
	if previous != nil && previous.Quarter != holdings.PreviousQuarterKey(filing.PeriodOfReport) {
		// A skipped or failed quarter in between: the diff is still valid
		// but spans more than one quarter.
		log.Warn("diffing across a quarter gap",
			zap.String("previous_quarter", previous.Quarter),
			zap.String("quarter", quarter),
		)
	}
	diffed, changes := holdings.Diff(enriched, previous)

	doc := &holdings.Document{
		CIK:             filer.CIK,
		Quarter:         quarter,
		FilerName:       filer.FilerName,
		AccessionNumber: filing.AccessionNumber,
		Holdings:        diffed,
	}

	report := holdings.QuarterlyReport{
		Quarter:         quarter,
		PeriodOfReport:  filing.PeriodOfReport.Format("2006-01-02"),
		FilingDate:      filing.FilingDate.Format("2006-01-02"),
		AccessionNumber: filing.AccessionNumber,
		Summary: holdings.ReportSummary{
			TotalHoldingsCount: len(enriched),
			TotalMarketValue:   doc.TotalValue(),
		},
		SectorBreakdown:  holdings.SectorBreakdown(diffed),
		PortfolioChanges: changes,
	}

	// Diffed -> Persisted. Holdings document first: the next filing's diff
	// reads it, so it must be durable before this loop advances.
	if err := o.holdings.Save(ctx, doc); err != nil {
		return failAt(StateDiffed, err)
	}

	filer.QuarterlyReports = append(filer.QuarterlyReports, report)
	filer.LatestActivity = holdings.LatestActivity{
		LastQuarter:      quarter,
		LastFilingDate:   report.FilingDate,
		HoldingsCount:    report.Summary.TotalHoldingsCount,
		TotalMarketValue: report.Summary.TotalMarketValue,
		LastProcessedAt:  o.now(),
	}
	if err := o.filers.Save(ctx, filer); err != nil {
		return failAt(StateDiffed, err)
	}

	log.Info("filing persisted",
		zap.String("quarter", quarter),
		zap.Int("holdings", len(diffed)),
		zap.Float64("total_value", report.Summary.TotalMarketValue),
		zap.Int("new", changes.NewPositions),
		zap.Int("exited", changes.ExitedPositions),
	)
	return nil
}

func (o *Orchestrator) loadPreviousQuarter(ctx context.Context, filer *holdings.Filer) (*holdings.Document, error) {
	if len(filer.QuarterlyReports) == 0 {
		return nil, nil
	}
	last := filer.QuarterlyReports[len(filer.QuarterlyReports)-1]
	previous, err := o.holdings.Load(ctx, filer.CIK, last.Quarter)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The filer records a quarter whose document is gone; diffing
			// against nothing would silently misclassify every position as
			// NEW, so surface it instead.
			return nil, fmt.Errorf("previous quarter %s recorded but holdings document missing: %w", last.Quarter, err)
		}
		return nil, err
	}
	return previous, nil
}
