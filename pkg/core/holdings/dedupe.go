package holdings

import "strings"

// NormalizeCUSIP trims and uppercases a raw CUSIP string.
func NormalizeCUSIP(cusip string) string {
	return strings.ToUpper(strings.TrimSpace(cusip))
}

// Deduplicate merges raw entries sharing a normalized CUSIP into one holding
// each. Managers frequently report the same security across several info
// table rows (different discretion buckets); value, shares and each voting
// authority sub-field are summed, and the merge is recorded for audit via
// DuplicateCount and SourceIndices. Output order follows first appearance.
func Deduplicate(raw []RawHolding) []Holding {
	index := make(map[string]int, len(raw))
	out := make([]Holding, 0, len(raw))

	for i, r := range raw {
		cusip := NormalizeCUSIP(r.CUSIP)
		if pos, ok := index[cusip]; ok {
			h := &out[pos]
			h.Value += r.Value
			h.Shares += r.Shares
			h.VotingAuthority.Sole += r.VotingAuthority.Sole
			h.VotingAuthority.Shared += r.VotingAuthority.Shared
			h.VotingAuthority.None += r.VotingAuthority.None
			h.DuplicateCount++
			h.SourceIndices = append(h.SourceIndices, i)
			continue
		}

		index[cusip] = len(out)
		out = append(out, Holding{
			IssuerName:           r.IssuerName,
			TitleOfClass:         r.TitleOfClass,
			CUSIP:                cusip,
			Value:                r.Value,
			Shares:               r.Shares,
			ShareType:            r.ShareType,
			VotingAuthority:      r.VotingAuthority,
			InvestmentDiscretion: r.InvestmentDiscretion,
			DuplicateCount:       1,
			SourceIndices:        []int{i},
		})
	}

	return out
}
