package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/fetch"
)

const (
	submissionsURL = "https://data.sec.gov/submissions/CIK%s.json"
	archiveBaseURL = "https://data.sec.gov/submissions/%s"
)

// Thirteen-F forms processed by the pipeline.
var thirteenFForms = map[string]bool{
	"13F-HR":   true,
	"13F-HR/A": true,
}

// earliestReportPeriod: quarters before this are never processed.
var earliestReportPeriod = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

// CompanySubmissions is the top-level response from the submissions API.
// Filing attributes arrive as parallel arrays.
type CompanySubmissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent RecentFilings `json:"recent"`
		Files  []struct {
			Name        string `json:"name"`
			FilingCount int    `json:"filingCount"`
		} `json:"files"`
	} `json:"filings"`
	Addresses struct {
		Business struct {
			Street1 string `json:"street1"`
			City    string `json:"city"`
			State   string `json:"stateOrCountry"`
			Zip     string `json:"zipCode"`
		} `json:"business"`
	} `json:"addresses"`
}

// RecentFilings holds the parallel filing-attribute arrays.
type RecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// rowCount bounds iteration over the parallel arrays. Truncated submissions
// documents appear in the wild and must degrade to fewer rows, not panic.
func (r *RecentFilings) rowCount() int {
	n := len(r.AccessionNumber)
	for _, m := range []int{len(r.Form), len(r.FilingDate), len(r.ReportDate)} {
		if m < n {
			n = m
		}
	}
	return n
}

// Filing is one 13F filing, denormalized from the parallel arrays.
type Filing struct {
	CIK             string
	AccessionNumber string
	FilingDate      time.Time
	PeriodOfReport  time.Time
	Form            string
	PrimaryDocument string
}

// SubmissionsClient fetches and filters a registrant's filing history.
type SubmissionsClient struct {
	client *fetch.Client
	log    *zap.Logger
}

// NewSubmissionsClient builds a client on the shared retrying fetcher.
func NewSubmissionsClient(client *fetch.Client, log *zap.Logger) *SubmissionsClient {
	return &SubmissionsClient{client: client, log: log.Named("submissions")}
}

// PadCIK zero-pads a CIK to the 10 digits the submissions API expects.
func PadCIK(cik string) string {
	return fmt.Sprintf("%010s", strings.TrimLeft(cik, "0"))
}

// Fetch retrieves the submissions document for a CIK.
func (s *SubmissionsClient) Fetch(ctx context.Context, cik string) (*CompanySubmissions, error) {
	url := fmt.Sprintf(submissionsURL, PadCIK(cik))
	body, err := s.client.GetJSON(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submissions for CIK %s: %w", cik, err)
	}

	var subs CompanySubmissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse submissions for CIK %s: %w", cik, err)
	}
	return &subs, nil
}

// ThirteenFFilings returns the registrant's 13F-HR/13F-HR/A filings with a
// report period at or after the fixed cutoff and inside [startYear, endYear],
// deduped by accession number and sorted oldest first. It reads the recent
// block plus the first historical page, which covers more than two years for
// every 13F filer cadence.
func (s *SubmissionsClient) ThirteenFFilings(ctx context.Context, cik string, startYear, endYear int) (string, []Filing, error) {
	subs, err := s.Fetch(ctx, cik)
	if err != nil {
		return "", nil, err
	}

	filings := collectThirteenF(cik, &subs.Filings.Recent, startYear, endYear)

	if len(subs.Filings.Files) > 0 {
		url := fmt.Sprintf(archiveBaseURL, subs.Filings.Files[0].Name)
		body, err := s.client.GetJSON(ctx, url)
		if err != nil {
			s.log.Warn("failed to fetch historical filings page", zap.String("cik", cik), zap.Error(err))
		} else {
			var page RecentFilings
			if err := json.Unmarshal(body, &page); err != nil {
				s.log.Warn("failed to parse historical filings page", zap.String("cik", cik), zap.Error(err))
			} else {
				filings = append(filings, collectThirteenF(cik, &page, startYear, endYear)...)
			}
		}
	}

	seen := make(map[string]bool, len(filings))
	deduped := filings[:0]
	for _, f := range filings {
		if seen[f.AccessionNumber] {
			continue
		}
		seen[f.AccessionNumber] = true
		deduped = append(deduped, f)
	}

	// Oldest first: each quarter's diff needs the prior quarter persisted.
	sort.Slice(deduped, func(i, j int) bool {
		if !deduped[i].PeriodOfReport.Equal(deduped[j].PeriodOfReport) {
			return deduped[i].PeriodOfReport.Before(deduped[j].PeriodOfReport)
		}
		return deduped[i].FilingDate.Before(deduped[j].FilingDate)
	})

	return subs.Name, deduped, nil
}

func collectThirteenF(cik string, recent *RecentFilings, startYear, endYear int) []Filing {
	var out []Filing
	for i := 0; i < recent.rowCount(); i++ {
		if !thirteenFForms[recent.Form[i]] {
			continue
		}
		report, err := time.Parse("2006-01-02", recent.ReportDate[i])
		if err != nil || report.Before(earliestReportPeriod) {
			continue
		}
		if report.Year() < startYear || report.Year() > endYear {
			continue
		}
		filed, _ := time.Parse("2006-01-02", recent.FilingDate[i])

		doc := ""
		if i < len(recent.PrimaryDocument) {
			doc = recent.PrimaryDocument[i]
		}
		out = append(out, Filing{
			CIK:             cik,
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filed,
			PeriodOfReport:  report,
			Form:            recent.Form[i],
			PrimaryDocument: doc,
		})
	}
	return out
}

// CountRecent13F counts 13F-HR filings within the trailing two years.
// Discovery uses it to decide whether a registrant is an active filer.
func CountRecent13F(subs *CompanySubmissions, now time.Time) int {
	cutoff := now.AddDate(-2, 0, 0)
	count := 0
	recent := subs.Filings.Recent
	for i := 0; i < recent.rowCount(); i++ {
		if !thirteenFForms[recent.Form[i]] {
			continue
		}
		filed, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil || filed.Before(cutoff) {
			continue
		}
		count++
	}
	return count
}

// BusinessAddress formats the registrant's business address for the Filer
// aggregate. Empty when the submissions document carries none.
func BusinessAddress(subs *CompanySubmissions) string {
	b := subs.Addresses.Business
	parts := make([]string, 0, 4)
	for _, p := range []string{b.Street1, b.City, b.State, b.Zip} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}
