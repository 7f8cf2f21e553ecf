package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hours converts the span between start and end into decimal hours rounded
// to four places.
func Hours(start, end time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}
	seconds := decimal.NewFromInt(int64(end.Sub(start) / time.Second))
	return seconds.Div(decimal.NewFromInt(3600)).Round(4)
}
