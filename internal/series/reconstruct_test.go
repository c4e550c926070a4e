package series

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// payload builds an API response from "date=value" pairs
func payload(readings ...string) models.RawPayload {
	items := make([]string, 0, len(readings))
	for _, r := range readings {
		parts := strings.SplitN(r, "=", 2)
		items = append(items, fmt.Sprintf(
			`{"value":%q,"date":%q,"interval_length":"PT30M","measure_type":"B"}`, parts[1], parts[0]))
	}
	return models.RawPayload(fmt.Sprintf(
		`{"meter_reading":{"usage_point_id":"14295224261882","start":"x","end":"y","interval_reading":[%s]}}`,
		strings.Join(items, ",")))
}

func ts(y int, m time.Month, d, h, min, s int) time.Time {
	return time.Date(y, m, d, h, min, s, 0, time.UTC)
}

func TestReconstruct_DailyRoundTrip(t *testing.T) {
	p1 := payload("2024-01-01=1000", "2024-01-02=1100", "2024-01-03=1200")
	p2 := payload("2024-01-04=1300", "2024-01-05=1400", "2024-01-06=1500")

	// most recent payload first, as the fetcher returns them
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p2, p1}, models.Daily)
	require.NoError(t, err)

	require.Equal(t, 6, s.Len())
	assert.Equal(t, 0, s.FilledCount())
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Rows[i].Timestamp.After(s.Rows[i-1].Timestamp), "index not increasing at %d", i)
	}
	for _, r := range s.Rows {
		assert.False(t, math.IsNaN(r.Consumption))
	}

	first := s.Rows[0]
	assert.Equal(t, ts(2023, 12, 31, 23, 59, 59), first.Timestamp, "timestamps mark interval start")
	assert.Equal(t, 1000.0, first.Consumption)
	assert.Equal(t, "Sunday", first.Day)
	assert.Equal(t, "December", first.Month)
	assert.Equal(t, 2023, first.Year)
	assert.Empty(t, first.Daytime, "daily rows carry no hourly features")
	assert.Zero(t, first.Price)
	assert.Equal(t, 8500.0, s.TotalConsumption())
}

func TestReconstruct_DailyFillsMissingDates(t *testing.T) {
	p := payload("2024-02-01=10", "2024-02-04=40")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Daily)
	require.NoError(t, err)

	require.Equal(t, 4, s.Len())
	assert.Equal(t, 2, s.FilledCount())
	assert.Equal(t, 0.0, s.Rows[1].Consumption)
	assert.True(t, s.Rows[2].Filled)
}

func TestReconstruct_DailyDuplicatesKeepFirst(t *testing.T) {
	p1 := payload("2024-02-01=10", "2024-02-02=20")
	p2 := payload("2024-02-02=99", "2024-02-03=30")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p1, p2}, models.Daily)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, 20.0, s.Rows[1].Consumption)
}

func TestReconstruct_HourlyGapFill(t *testing.T) {
	// interval end timestamps: hours 0-2 and 5-6 after the one second shift
	p1 := payload("2024-03-04 01:00:00=100", "2024-03-04 02:00:00=200", "2024-03-04 03:00:00=300")
	p2 := payload("2024-03-04 06:00:00=600", "2024-03-04 07:00:00=700")

	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p2, p1}, models.Hourly)
	require.NoError(t, err)

	require.Equal(t, 7, s.Len())
	for i, r := range s.Rows {
		assert.Equal(t, ts(2024, 3, 4, i, 0, 0), r.Timestamp)
		assert.Equal(t, float64(i), r.Hour)
	}
	assert.Equal(t, 0.0, s.Rows[3].Consumption)
	assert.Equal(t, 0.0, s.Rows[4].Consumption)
	assert.True(t, s.Rows[3].Filled)
	assert.True(t, s.Rows[4].Filled)
	assert.Equal(t, 600.0, s.Rows[5].Consumption)
	assert.Equal(t, 2, s.FilledCount())
}

func TestReconstruct_HourlyGapFillFourPoints(t *testing.T) {
	p := payload("2024-03-04 01:00:00=1", "2024-03-04 03:00:00=3", "2024-03-04 06:00:00=6", "2024-03-04 07:00:00=7")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Hourly)
	require.NoError(t, err)

	require.Equal(t, 7, s.Len())
	assert.Equal(t, 3, s.FilledCount())
	assert.Equal(t, 0.0, s.Rows[3].Consumption)
	assert.Equal(t, 0.0, s.Rows[4].Consumption)
}

func TestReconstruct_HourlyAveragesSubHourlyReadings(t *testing.T) {
	// two half-hour readings inside 10:00-11:00
	p := payload("2024-03-04 10:30:00=400", "2024-03-04 11:00:00=600")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Hourly)
	require.NoError(t, err)

	require.Equal(t, 1, s.Len())
	r := s.Rows[0]
	assert.Equal(t, ts(2024, 3, 4, 10, 0, 0), r.Timestamp)
	assert.Equal(t, 500.0, r.Consumption)
	assert.Equal(t, Morning, r.Daytime)
	assert.Equal(t, 500.0*0.09/1000, r.Price)
	assert.Equal(t, "Monday", r.Day)
	assert.Equal(t, "March", r.Month)
}

func TestReconstruct_NullValuesAreMissingReadings(t *testing.T) {
	// 10:00 has one null and one real half hour, 11:00 holds only a null
	p := models.RawPayload(`{"meter_reading":{"interval_reading":[
		{"value":null,"date":"2024-03-04 10:30:00"},
		{"value":"600","date":"2024-03-04 11:00:00"},
		{"value":null,"date":"2024-03-04 11:30:00"},
		{"value":null,"date":"2024-03-04 12:00:00"},
		{"value":"800","date":"2024-03-04 13:00:00"}
	]}}`)

	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Hourly)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, 600.0, s.Rows[0].Consumption, "null left out of the hourly mean")
	assert.False(t, s.Rows[0].Filled)
	assert.Equal(t, ts(2024, 3, 4, 11, 0, 0), s.Rows[1].Timestamp)
	assert.Equal(t, 0.0, s.Rows[1].Consumption)
	assert.True(t, s.Rows[1].Filled, "null-only hour is zeroed")
	assert.Equal(t, 800.0, s.Rows[2].Consumption)
}

func TestReconstruct_DailyNullValue(t *testing.T) {
	p := models.RawPayload(`{"meter_reading":{"interval_reading":[
		{"value":null,"date":"2024-01-01"},
		{"value":"7","date":"2024-01-02"}
	]}}`)

	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Daily)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 0.0, s.Rows[0].Consumption)
	assert.True(t, s.Rows[0].Filled)
	assert.Equal(t, 7.0, s.Rows[1].Consumption)
}

func TestReconstruct_OverlappingWindowsAverage(t *testing.T) {
	// the same reading delivered by two adjacent weekly windows
	p1 := payload("2024-03-04 10:30:00=400", "2024-03-04 11:00:00=600")
	p2 := payload("2024-03-04 11:00:00=600")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p1, p2}, models.Hourly)
	require.NoError(t, err)

	require.Equal(t, 1, s.Len())
	assert.InDelta(t, 1600.0/3, s.Rows[0].Consumption, 1e-9)
}

func TestReconstruct_SkipsUnparseablePayloads(t *testing.T) {
	good := payload("2024-01-01=5", "2024-01-02=6")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{
		models.RawPayload(`not json`),
		models.RawPayload(`{"error":"quota"}`),
		good,
	}, models.Daily)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestReconstruct_NoValidData(t *testing.T) {
	_, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{
		models.RawPayload(`{`),
		models.RawPayload(`{"meter_reading":{}}`),
	}, models.Hourly)
	assert.ErrorIs(t, err, models.ErrNoValidData)

	_, err = NewReconstructor(nil).Reconstruct(nil, models.Daily)
	assert.ErrorIs(t, err, models.ErrNoValidData)
}

func TestReconstruct_EmptyReadingsAreFatal(t *testing.T) {
	_, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{payload()}, models.Daily)
	assert.ErrorIs(t, err, models.ErrEmptySeries)
}

func TestReconstruct_MalformedTimestampIsFatal(t *testing.T) {
	// a date-only reading cannot be parsed as hourly
	_, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{payload("2024-01-01=5")}, models.Hourly)
	assert.True(t, errors.Is(err, ErrMalformedReading), "got %v", err)

	_, err = NewReconstructor(nil).Reconstruct([]models.RawPayload{payload("2024-01-01=abc")}, models.Daily)
	assert.ErrorIs(t, err, ErrMalformedReading)
}

func TestReconstruct_DailyMaxPowerPeaksUseTheirDate(t *testing.T) {
	p := payload("2024-01-01 07:34:12=6100", "2024-01-02 19:02:00=5800")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Daily)
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, ts(2023, 12, 31, 23, 59, 59), s.Rows[0].Timestamp)
	assert.Equal(t, 5800.0, s.Rows[1].Consumption)
}

func TestReconstruct_ExcludeAndExtraColumns(t *testing.T) {
	p := models.RawPayload(`{"meter_reading":{"interval_reading":[
		{"value":"10","date":"2024-01-01","interval_length":"P1D","measure_type":"B","quality":"2"},
		{"value":"30","date":"2024-01-03","interval_length":"P1D","measure_type":"B","quality":"4"}
	]}}`)

	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Daily)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, map[string]float64{"quality": 2}, s.Rows[0].Extra)
	assert.Equal(t, map[string]float64{"quality": 0}, s.Rows[1].Extra, "filled slot gets zero extras")

	s, err = NewReconstructor(nil, WithExclude("quality")).Reconstruct([]models.RawPayload{p}, models.Daily)
	require.NoError(t, err)
	assert.Nil(t, s.Rows[0].Extra, "non-numeric interval_length is dropped, quality excluded")
}

func TestReconstruct_CustomTariff(t *testing.T) {
	p := payload("2024-03-04 01:00:00=2000")
	s, err := NewReconstructor(nil, WithTariff(0.25)).Reconstruct([]models.RawPayload{p}, models.Hourly)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Rows[0].Price)
	assert.True(t, s.TotalPrice().Equal(decimal.RequireFromString("0.5")), "got %s", s.TotalPrice())
}

func TestTimeSeries_TotalPriceIsExact(t *testing.T) {
	s := &TimeSeries{Granularity: models.Hourly, Rows: []Row{{Price: 0.1}, {Price: 0.2}}}
	assert.Equal(t, "0.3", s.TotalPrice().String())
}

func TestTimeSeries_UsageData(t *testing.T) {
	p := payload("2024-03-04 01:00:00=100", "2024-03-04 03:00:00=300")
	s, err := NewReconstructor(nil).Reconstruct([]models.RawPayload{p}, models.Hourly)
	require.NoError(t, err)

	rows := s.UsageData("14295224261882", models.LoadCurve)
	require.Len(t, rows, 3)
	assert.Equal(t, "consumption_load_curve", rows[0].Endpoint)
	assert.True(t, rows[1].Filled)
	assert.Equal(t, s.Start(), rows[0].Timestamp)
	assert.Equal(t, s.End(), rows[2].Timestamp)
}
