// Package series rebuilds one regular time series from the raw payloads of
// one or more API calls.
package series

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// Row is one slot of a reconstructed series
type Row struct {
	Timestamp   time.Time
	Consumption float64
	// Extra holds the other numeric reading columns that were not excluded
	Extra map[string]float64
	// Filled is true for slots inserted by gap filling
	Filled bool

	Day   string
	Month string
	Year  int

	// Hourly only
	Hour    float64
	Daytime string
	Price   float64
}

// TimeSeries is ordered by timestamp with exactly one row per grid slot
// between its first and last timestamps
type TimeSeries struct {
	Granularity models.Granularity
	Rows        []Row
}

// Len returns the number of rows
func (s *TimeSeries) Len() int {
	return len(s.Rows)
}

// Start returns the first timestamp, or the zero time for an empty series
func (s *TimeSeries) Start() time.Time {
	if len(s.Rows) == 0 {
		return time.Time{}
	}
	return s.Rows[0].Timestamp
}

// End returns the last timestamp, or the zero time for an empty series
func (s *TimeSeries) End() time.Time {
	if len(s.Rows) == 0 {
		return time.Time{}
	}
	return s.Rows[len(s.Rows)-1].Timestamp
}

// TotalConsumption sums the consumption column
func (s *TimeSeries) TotalConsumption() float64 {
	var total float64
	for _, r := range s.Rows {
		total += r.Consumption
	}
	return total
}

// TotalPrice sums the price column in decimal
func (s *TimeSeries) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Rows {
		total = total.Add(decimal.NewFromFloat(r.Price))
	}
	return total
}

// FilledCount returns how many rows were inserted by gap filling
func (s *TimeSeries) FilledCount() int {
	n := 0
	for _, r := range s.Rows {
		if r.Filled {
			n++
		}
	}
	return n
}

// UsageData converts the rows for storage
func (s *TimeSeries) UsageData(usagePointID string, endpoint models.EndpointKind) []models.UsageData {
	out := make([]models.UsageData, 0, len(s.Rows))
	for _, r := range s.Rows {
		out = append(out, models.UsageData{
			Timestamp:    r.Timestamp,
			UsagePointID: usagePointID,
			Endpoint:     endpoint.String(),
			Consumption:  r.Consumption,
			Price:        r.Price,
			Filled:       r.Filled,
		})
	}
	return out
}
