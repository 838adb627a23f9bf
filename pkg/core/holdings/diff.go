package holdings

// Diff compares the current quarter's holdings against the previous
// persisted quarter and classifies every position. previous may be nil
// (first quarter for a filer): everything is NEW.
//
// Classification is driven by the sign of the shares delta, not the value
// delta, so price moves alone leave a position UNCHANGED. Positions present
// last quarter but absent now are appended as EXITED entries with zeroed
// value/shares.
func Diff(current []Holding, previous *Document) ([]Holding, PortfolioChanges) {
	prevByCUSIP := make(map[string]Holding)
	var prevTotal float64
	if previous != nil {
		for _, p := range previous.Holdings {
			if p.ChangeType == ChangeExited {
				continue
			}
			prevByCUSIP[p.CUSIP] = p
			prevTotal += p.Value
		}
	}

	var currentTotal float64
	for _, h := range current {
		currentTotal += h.Value
	}

	var stats PortfolioChanges
	out := make([]Holding, 0, len(current)+len(prevByCUSIP))

	for _, h := range current {
		prev, ok := prevByCUSIP[h.CUSIP]
		if !ok {
			h.ChangeType = ChangeNew
			h.ValueChange = h.Value
			h.SharesChange = h.Shares
			h.ValueChangePct = 0
			h.SharesChangePct = 0
			stats.NewPositions++
		} else {
			h.ValueChange = h.Value - prev.Value
			h.SharesChange = h.Shares - prev.Shares
			if prev.Value != 0 {
				h.ValueChangePct = h.ValueChange / prev.Value * 100
			}
			if prev.Shares != 0 {
				h.SharesChangePct = float64(h.SharesChange) / float64(prev.Shares) * 100
			}
			switch {
			case h.SharesChange > 0:
				h.ChangeType = ChangeIncreased
				stats.IncreasedPositions++
			case h.SharesChange < 0:
				h.ChangeType = ChangeDecreased
				stats.DecreasedPositions++
			default:
				h.ChangeType = ChangeUnchanged
				stats.UnchangedPositions++
			}
			delete(prevByCUSIP, h.CUSIP)
		}

		if currentTotal > 0 {
			h.PercentOfPortfolio = h.Value / currentTotal * 100
		} else {
			h.PercentOfPortfolio = 0
		}
		out = append(out, h)
	}

	// Whatever is left in the previous map was sold off entirely.
	for _, prev := range prevByCUSIP {
		out = append(out, Holding{
			IssuerName:           prev.IssuerName,
			TitleOfClass:         prev.TitleOfClass,
			CUSIP:                prev.CUSIP,
			Ticker:               prev.Ticker,
			Sector:               prev.Sector,
			Industry:             prev.Industry,
			ShareType:            prev.ShareType,
			InvestmentDiscretion: prev.InvestmentDiscretion,
			Value:                0,
			Shares:               0,
			PercentOfPortfolio:   0,
			ChangeType:           ChangeExited,
			ValueChange:          -prev.Value,
			ValueChangePct:       -100,
			SharesChange:         -prev.Shares,
			SharesChangePct:      -100,
		})
		stats.ExitedPositions++
	}

	stats.TotalValueChange = currentTotal - prevTotal
	if prevTotal > 0 {
		stats.TotalValueChangePct = stats.TotalValueChange / prevTotal * 100
	}

	return out, stats
}

// SectorBreakdown aggregates enriched holdings into per-sector value shares.
// Exited positions carry no value and drop out naturally; holdings without a
// resolved sector land in "Unknown".
func SectorBreakdown(hs []Holding) []SectorWeight {
	totals := make(map[string]float64)
	order := make([]string, 0)
	var grand float64

	for _, h := range hs {
		if h.ChangeType == ChangeExited {
			continue
		}
		sector := h.Sector
		if sector == "" {
			sector = "Unknown"
		}
		if _, ok := totals[sector]; !ok {
			order = append(order, sector)
		}
		totals[sector] += h.Value
		grand += h.Value
	}

	out := make([]SectorWeight, 0, len(order))
	for _, sector := range order {
		w := SectorWeight{Sector: sector, Value: totals[sector]}
		if grand > 0 {
			w.Percent = w.Value / grand * 100
		}
		out = append(out, w)
	}
	return out
}
