package edgar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"holdings13f/pkg/core/fetch"
	"holdings13f/pkg/core/holdings"
)

// SEC reported 13F values in thousands of dollars until this date; filings
// submitted on or after it report plain dollars.
var valueScaleCutover = time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)

// interDocumentDelay spaces the primary-document and info-table fetches of
// one filing.
const interDocumentDelay = 300 * time.Millisecond

// node is a generic XML tree; namespace prefixes are discarded by keeping
// only the local element name, so the three schema variants in the wild
// collapse onto the same paths.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *node) name() string {
	return n.XMLName.Local
}

// child returns the first direct child with the given local name
// (case-insensitive).
func (n *node) child(name string) *node {
	for i := range n.Children {
		if strings.EqualFold(n.Children[i].name(), name) {
			return &n.Children[i]
		}
	}
	return nil
}

// find walks the tree depth-first for the first node with the local name.
func (n *node) find(name string) *node {
	if strings.EqualFold(n.name(), name) {
		return n
	}
	for i := range n.Children {
		if found := n.Children[i].find(name); found != nil {
			return found
		}
	}
	return nil
}

func (n *node) text() string {
	return strings.TrimSpace(n.Text)
}

func (n *node) childText(name string) string {
	if c := n.child(name); c != nil {
		return c.text()
	}
	return ""
}

// FilingContent is the raw parsed output of one filing's XML documents.
type FilingContent struct {
	FilerName      string
	PeriodOfReport string
	Holdings       []holdings.RawHolding
	DroppedEntries int
}

// InfoTableParser fetches and normalizes a 13F filing's XML documents.
type InfoTableParser struct {
	client *fetch.Client
	log    *zap.Logger
}

// NewInfoTableParser builds a parser on the shared retrying fetcher.
func NewInfoTableParser(client *fetch.Client, log *zap.Logger) *InfoTableParser {
	return &InfoTableParser{client: client, log: log.Named("infotable")}
}

// FetchAndParse downloads both filing documents (spaced to respect SEC
// pacing), parses the cover data from the primary document and the holdings
// from the information table, and applies value-scale normalization keyed on
// the filing date.
func (p *InfoTableParser) FetchAndParse(ctx context.Context, docs *FilingDocuments, filingDate time.Time) (*FilingContent, error) {
	primaryBody, err := p.client.Get(ctx, docs.PrimaryDocURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch primary document: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interDocumentDelay):
	}

	tableBody, err := p.client.Get(ctx, docs.InfoTableURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch information table: %w", err)
	}

	content := &FilingContent{}

	if primary, err := parseTree(primaryBody); err == nil {
		if cover := primary.find("coverPage"); cover != nil {
			content.PeriodOfReport = cover.childText("reportCalendarOrQuarter")
			if fm := cover.find("filingManager"); fm != nil {
				content.FilerName = fm.childText("name")
			}
		}
	}

	table, err := parseTree(tableBody)
	if err != nil {
		return nil, fmt.Errorf("failed to parse information table XML: %w", err)
	}

	raw := extractHoldings(table)
	if raw == nil {
		return nil, fmt.Errorf("information table XML matched no known schema shape")
	}

	scale := 1.0
	if filingDate.Before(valueScaleCutover) {
		scale = 1000
	}

	kept := make([]holdings.RawHolding, 0, len(raw))
	for _, h := range raw {
		h.Value *= scale
		// Entries with no CUSIP or non-positive value carry no usable
		// position data and are dropped, not errored.
		if strings.TrimSpace(h.CUSIP) == "" || h.Value <= 0 {
			content.DroppedEntries++
			continue
		}
		kept = append(kept, h)
	}
	content.Holdings = kept

	p.log.Debug("parsed information table",
		zap.Int("holdings", len(kept)),
		zap.Int("dropped", content.DroppedEntries),
		zap.Float64("scale", scale),
	)
	return content, nil
}

func parseTree(body []byte) (*node, error) {
	var root node
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

// extractorStrategy attempts to pull the holdings list out of one known
// schema shape. Strategies are tried in order; the first non-empty result
// wins, keeping each shape's handling isolated.
type extractorStrategy func(root *node) []holdings.RawHolding

var extractorStrategies = []extractorStrategy{
	// Shape 1: <informationTable><infoTable>... (the published schema).
	func(root *node) []holdings.RawHolding {
		table := root.find("informationTable")
		if table == nil {
			return nil
		}
		return entriesFrom(table)
	},
	// Shape 2: bare <infoTable> elements directly under an arbitrary root,
	// seen in hand-built amendments.
	func(root *node) []holdings.RawHolding {
		return entriesFrom(root)
	},
	// Shape 3: the whole submission wrapped in an outer envelope with the
	// table nested under a formData/document branch.
	func(root *node) []holdings.RawHolding {
		first := root.find("infoTable")
		if first == nil {
			return nil
		}
		var out []holdings.RawHolding
		collectInfoTables(root, &out)
		return out
	},
}

func extractHoldings(root *node) []holdings.RawHolding {
	for _, strategy := range extractorStrategies {
		if entries := strategy(root); len(entries) > 0 {
			return entries
		}
	}
	return nil
}

func entriesFrom(parent *node) []holdings.RawHolding {
	var out []holdings.RawHolding
	for i := range parent.Children {
		c := &parent.Children[i]
		if strings.EqualFold(c.name(), "infoTable") {
			out = append(out, parseEntry(c))
		}
	}
	return out
}

func collectInfoTables(n *node, out *[]holdings.RawHolding) {
	for i := range n.Children {
		c := &n.Children[i]
		if strings.EqualFold(c.name(), "infoTable") {
			*out = append(*out, parseEntry(c))
			continue
		}
		collectInfoTables(c, out)
	}
}

func parseEntry(entry *node) holdings.RawHolding {
	h := holdings.RawHolding{
		IssuerName:           entry.childText("nameOfIssuer"),
		TitleOfClass:         entry.childText("titleOfClass"),
		CUSIP:                entry.childText("cusip"),
		Value:                parseNumber(entry.childText("value")),
		InvestmentDiscretion: entry.childText("investmentDiscretion"),
	}

	if shr := entry.child("shrsOrPrnAmt"); shr != nil {
		h.Shares = int64(parseNumber(shr.childText("sshPrnamt")))
		h.ShareType = shr.childText("sshPrnamtType")
	} else {
		// Flattened variant: amounts directly on the entry.
		h.Shares = int64(parseNumber(entry.childText("sshPrnamt")))
		h.ShareType = entry.childText("sshPrnamtType")
	}

	if va := entry.child("votingAuthority"); va != nil {
		h.VotingAuthority = holdings.VotingAuthority{
			Sole:   int64(parseNumber(va.childText("Sole"))),
			Shared: int64(parseNumber(va.childText("Shared"))),
			None:   int64(parseNumber(va.childText("None"))),
		}
	}

	return h
}

// parseNumber is tolerant of thousands separators and decimal values, both
// of which appear in real filings despite the schema.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
