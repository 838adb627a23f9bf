package edgar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"holdings13f/pkg/core/fetch"
)

// ErrMissingXMLComponents is returned when the filing index page does not
// expose both the primary document and the information table as XML links.
var ErrMissingXMLComponents = errors.New("missing XML components on filing index page")

// FilingDocuments holds the two XML document URLs of one 13F filing.
type FilingDocuments struct {
	PrimaryDocURL string
	InfoTableURL  string
}

// IndexScanner locates a filing's XML documents on its EDGAR index page.
// The index page has no machine-readable contract, so rows are matched by
// description text and the .xml link suffix rather than column position.
type IndexScanner struct {
	client *fetch.Client
	log    *zap.Logger
}

// NewIndexScanner builds a scanner on the shared retrying fetcher.
func NewIndexScanner(client *fetch.Client, log *zap.Logger) *IndexScanner {
	return &IndexScanner{client: client, log: log.Named("index")}
}

// FilingIndexURL builds the Archives index page URL for a filing.
func FilingIndexURL(cik, accession string) string {
	noDashes := strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s-index.htm",
		strings.TrimLeft(cik, "0"), noDashes, accession)
}

// Locate fetches the index page and identifies the primary document and
// information table XML links.
func (s *IndexScanner) Locate(ctx context.Context, cik, accession string) (*FilingDocuments, error) {
	indexURL := FilingIndexURL(cik, accession)
	body, err := s.client.Get(ctx, indexURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filing index for %s: %w", accession, err)
	}

	docs, err := parseIndexHTML(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filing index for %s: %w", accession, err)
	}

	if docs.PrimaryDocURL == "" || docs.InfoTableURL == "" {
		s.log.Warn("filing index missing XML links",
			zap.String("accession", accession),
			zap.String("primary", docs.PrimaryDocURL),
			zap.String("info_table", docs.InfoTableURL),
		)
		return nil, fmt.Errorf("%w: %s", ErrMissingXMLComponents, accession)
	}

	return docs, nil
}

// parseIndexHTML scans the index page table rows for the two XML links.
func parseIndexHTML(body []byte) (*FilingDocuments, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var docs FilingDocuments

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		rowText := strings.ToLower(row.Text())

		row.Find("a").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || !strings.HasSuffix(strings.ToLower(href), ".xml") {
				return
			}
			lowerHref := strings.ToLower(href)
			// The viewer wrapper links (xslForm13F_X02/...) point at rendered
			// HTML; the raw XML sits behind the undecorated path.
			if strings.Contains(lowerHref, "/xsl") {
				return
			}

			url := href
			if strings.HasPrefix(url, "/") {
				url = "https://www.sec.gov" + url
			}

			switch {
			case docs.InfoTableURL == "" && isInfoTableRow(rowText, lowerHref):
				docs.InfoTableURL = url
			case docs.PrimaryDocURL == "" && isPrimaryDocRow(rowText, lowerHref):
				docs.PrimaryDocURL = url
			}
		})
	})

	return &docs, nil
}

func isInfoTableRow(rowText, href string) bool {
	return strings.Contains(rowText, "information table") ||
		strings.Contains(href, "infotable") ||
		strings.Contains(href, "form13finfotable")
}

func isPrimaryDocRow(rowText, href string) bool {
	return strings.Contains(rowText, "primary") ||
		strings.Contains(href, "primary_doc") ||
		strings.Contains(href, "primarydoc")
}
