package edgar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCompanyName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Apple Inc.", "APPLE"},
		{"MICROSOFT CORP", "MICROSOFT"},
		{"XYZ HLDGS INC", "XYZ HOLDINGS"},
		{"ACME MFG CO", "ACME MANUFACTURING"},
		{"Johnson & Johnson", "JOHNSON AND JOHNSON"},
		{"Alphabet Inc. Class A", "ALPHABET"},
		{"BERKSHIRE HATHAWAY INC CL B", "BERKSHIRE HATHAWAY"},
		{"Acme Holdings Corp Ltd", "ACME HOLDINGS"},
		{"INTL BUSINESS MACHINES CORP", "INTERNATIONAL BUSINESS MACHINES"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeCompanyName(tc.in), "input %q", tc.in)
	}
}

func testIndex() *TickerIndex {
	return NewStaticTickerIndex([]TickerEntry{
		{CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
		{CIK: 789019, Ticker: "MSFT", Title: "MICROSOFT CORP"},
		{CIK: 1652044, Ticker: "GOOGL", Title: "Alphabet Inc."},
	})
}

func TestTickerIndexLookups(t *testing.T) {
	idx := testIndex()

	e, ok := idx.ByTicker("aapl")
	require.True(t, ok)
	assert.Equal(t, "Apple Inc.", e.Title)

	e, ok = idx.ByCIK(789019)
	require.True(t, ok)
	assert.Equal(t, "MSFT", e.Ticker)

	e, ok = idx.ByName("Microsoft Corporation")
	require.True(t, ok)
	assert.Equal(t, "MSFT", e.Ticker)

	_, ok = idx.ByName("Unrelated Company")
	assert.False(t, ok)
}

func TestTickerIndexNameKeyNormalization(t *testing.T) {
	idx := testIndex()

	// Legal suffix and punctuation differences collapse onto the same key.
	e, ok := idx.ByName("APPLE INC")
	require.True(t, ok)
	assert.Equal(t, "AAPL", e.Ticker)
}
