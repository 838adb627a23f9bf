package holdings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicateMergesSameCUSIP(t *testing.T) {
	raw := []RawHolding{
		{IssuerName: "APPLE INC", CUSIP: "037833100", Value: 1000, Shares: 10, VotingAuthority: VotingAuthority{Sole: 10}},
		{IssuerName: "MICROSOFT CORP", CUSIP: "594918104", Value: 500, Shares: 5, VotingAuthority: VotingAuthority{Shared: 5}},
		{IssuerName: "APPLE INC", CUSIP: " 037833100 ", Value: 2000, Shares: 20, VotingAuthority: VotingAuthority{Sole: 15, None: 5}},
	}

	out := Deduplicate(raw)
	require.Len(t, out, 2)

	apple := out[0]
	assert.Equal(t, "037833100", apple.CUSIP)
	assert.Equal(t, float64(3000), apple.Value)
	assert.Equal(t, int64(30), apple.Shares)
	assert.Equal(t, VotingAuthority{Sole: 25, Shared: 0, None: 5}, apple.VotingAuthority)
	assert.Equal(t, 2, apple.DuplicateCount)
	assert.Equal(t, []int{0, 2}, apple.SourceIndices)

	msft := out[1]
	assert.Equal(t, "594918104", msft.CUSIP)
	assert.Equal(t, 1, msft.DuplicateCount)
}

func TestDeduplicateNormalizesCase(t *testing.T) {
	raw := []RawHolding{
		{CUSIP: "g1234567a", Value: 100, Shares: 1},
		{CUSIP: "G1234567A", Value: 100, Shares: 1},
	}
	out := Deduplicate(raw)
	require.Len(t, out, 1)
	assert.Equal(t, "G1234567A", out[0].CUSIP)
	assert.Equal(t, float64(200), out[0].Value)
}

func TestDeduplicateSumInvariant(t *testing.T) {
	raw := []RawHolding{
		{CUSIP: "A", Value: 1, Shares: 1},
		{CUSIP: "B", Value: 2, Shares: 2},
		{CUSIP: "A", Value: 3, Shares: 3},
		{CUSIP: "C", Value: 4, Shares: 4},
		{CUSIP: "B", Value: 5, Shares: 5},
	}
	out := Deduplicate(raw)
	require.Len(t, out, 3)

	byCUSIP := make(map[string]Holding)
	for _, h := range out {
		byCUSIP[h.CUSIP] = h
	}
	assert.Equal(t, float64(4), byCUSIP["A"].Value)
	assert.Equal(t, int64(4), byCUSIP["A"].Shares)
	assert.Equal(t, float64(7), byCUSIP["B"].Value)
	assert.Equal(t, float64(4), byCUSIP["C"].Value)
}

func TestDeduplicateEmpty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil))
}
