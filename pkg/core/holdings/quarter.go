package holdings

import (
	"fmt"
	"time"
)

// QuarterKey derives the short quarter label ("24Q3") from a report period
// end date. The diff step keys its "previous quarter" read on this label, so
// it stays a single pure function rather than inline date math.
func QuarterKey(periodOfReport time.Time) string {
	q := (int(periodOfReport.Month())-1)/3 + 1
	return fmt.Sprintf("%02dQ%d", periodOfReport.Year()%100, q)
}

// PreviousQuarterKey returns the label of the calendar quarter immediately
// before periodOfReport's quarter.
func PreviousQuarterKey(periodOfReport time.Time) string {
	q := (int(periodOfReport.Month())-1)/3 + 1
	year := periodOfReport.Year()
	if q == 1 {
		return fmt.Sprintf("%02dQ%d", (year-1)%100, 4)
	}
	return fmt.Sprintf("%02dQ%d", year%100, q-1)
}
