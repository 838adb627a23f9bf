// Package holdings contains the pure domain model and transformations of the
// 13F pipeline: raw filing entries, deduplication, quarter keys and the
// quarter-over-quarter diff.
package holdings

import "time"

// ChangeType classifies a position's quarter-over-quarter movement.
type ChangeType string

const (
	ChangeNew       ChangeType = "NEW"
	ChangeIncreased ChangeType = "INCREASED"
	ChangeDecreased ChangeType = "DECREASED"
	ChangeUnchanged ChangeType = "UNCHANGED"
	ChangeExited    ChangeType = "EXITED"
)

// VotingAuthority is the sole/shared/none share breakdown reported per entry.
type VotingAuthority struct {
	Sole   int64 `json:"sole"`
	Shared int64 `json:"shared"`
	None   int64 `json:"none"`
}

// RawHolding is one information-table entry as parsed from the filing XML,
// after value-scale normalization but before dedup and enrichment.
type RawHolding struct {
	IssuerName           string          `json:"issuer_name"`
	TitleOfClass         string          `json:"title_of_class"`
	CUSIP                string          `json:"cusip"`
	Value                float64         `json:"value"` // dollars
	Shares               int64           `json:"shares"`
	ShareType            string          `json:"share_type"`
	VotingAuthority      VotingAuthority `json:"voting_authority"`
	InvestmentDiscretion string          `json:"investment_discretion"`
}

// Holding is the persisted per-position record after dedup, resolution,
// enrichment and diffing.
type Holding struct {
	IssuerName           string          `json:"issuer_name"`
	TitleOfClass         string          `json:"title_of_class,omitempty"`
	CUSIP                string          `json:"cusip"`
	Ticker               string          `json:"ticker,omitempty"`
	Sector               string          `json:"sector,omitempty"`
	Industry             string          `json:"industry,omitempty"`
	Value                float64         `json:"value"`
	Shares               int64           `json:"shares"`
	ShareType            string          `json:"share_type"`
	PercentOfPortfolio   float64         `json:"percent_of_portfolio"`
	ChangeType           ChangeType      `json:"change_type"`
	ValueChange          float64         `json:"value_change"`
	ValueChangePct       float64         `json:"value_change_pct"`
	SharesChange         int64           `json:"shares_change"`
	SharesChangePct      float64         `json:"shares_change_pct"`
	VotingAuthority      VotingAuthority `json:"voting_authority"`
	InvestmentDiscretion string          `json:"investment_discretion"`

	// Dedup audit trail.
	DuplicateCount int   `json:"duplicate_count,omitempty"`
	SourceIndices  []int `json:"source_indices,omitempty"`
}

// Document is the per-(cik, quarter) holdings aggregate. Reprocessing a
// quarter replaces the whole document; entries are never merged in place.
type Document struct {
	CIK             string    `json:"cik"`
	Quarter         string    `json:"quarter"`
	FilerName       string    `json:"filer_name"`
	AccessionNumber string    `json:"accession_number"`
	Holdings        []Holding `json:"holdings"`
}

// TotalValue sums the dollar value of non-exited positions.
func (d *Document) TotalValue() float64 {
	var total float64
	for _, h := range d.Holdings {
		if h.ChangeType != ChangeExited {
			total += h.Value
		}
	}
	return total
}

// PortfolioChanges tallies one quarter's diff against the prior quarter.
type PortfolioChanges struct {
	NewPositions        int     `json:"new_positions"`
	IncreasedPositions  int     `json:"increased_positions"`
	DecreasedPositions  int     `json:"decreased_positions"`
	UnchangedPositions  int     `json:"unchanged_positions"`
	ExitedPositions     int     `json:"exited_positions"`
	TotalValueChange    float64 `json:"total_value_change"`
	TotalValueChangePct float64 `json:"total_value_change_pct"`
}

// SectorWeight is one slice of a quarter's sector breakdown.
type SectorWeight struct {
	Sector  string  `json:"sector"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
}

// ReportSummary carries the headline numbers for one quarter.
type ReportSummary struct {
	TotalHoldingsCount int     `json:"total_holdings_count"`
	TotalMarketValue   float64 `json:"total_market_value"`
}

// QuarterlyReport is the append-only per-quarter summary embedded in a Filer.
// At most one exists per (filer, quarter); it is never mutated once created.
type QuarterlyReport struct {
	Quarter          string           `json:"quarter"`
	PeriodOfReport   string           `json:"period_of_report"`
	FilingDate       string           `json:"filing_date"`
	AccessionNumber  string           `json:"accession_number"`
	Summary          ReportSummary    `json:"summary"`
	SectorBreakdown  []SectorWeight   `json:"sector_breakdown,omitempty"`
	PortfolioChanges PortfolioChanges `json:"portfolio_changes"`
}

// LatestActivity summarizes the most recent processed quarter.
type LatestActivity struct {
	LastQuarter      string    `json:"last_quarter"`
	LastFilingDate   string    `json:"last_filing_date"`
	HoldingsCount    int       `json:"holdings_count"`
	TotalMarketValue float64   `json:"total_market_value"`
	LastProcessedAt  time.Time `json:"last_processed_at"`
}

// Filer is the per-manager aggregate owned by the pipeline. The CRM layer
// reads it but never writes it.
type Filer struct {
	CIK              string            `json:"cik"`
	FilerName        string            `json:"filer_name"`
	Address          string            `json:"address,omitempty"`
	LatestActivity   LatestActivity    `json:"latest_activity"`
	QuarterlyReports []QuarterlyReport `json:"quarterly_reports"`
}

// HasAccession reports whether a filing is already recorded.
func (f *Filer) HasAccession(accession string) bool {
	for _, r := range f.QuarterlyReports {
		if r.AccessionNumber == accession {
			return true
		}
	}
	return false
}

// HasQuarter reports whether a quarter already has a report.
func (f *Filer) HasQuarter(quarter string) bool {
	for _, r := range f.QuarterlyReports {
		if r.Quarter == quarter {
			return true
		}
	}
	return false
}
