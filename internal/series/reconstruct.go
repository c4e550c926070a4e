package series

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/meterfetch/internal/logger"
	"github.com/jgoulah/meterfetch/pkg/models"
)

// DefaultTariff is the price per kWh applied to hourly consumption in Wh
const DefaultTariff = 0.09

// DefaultExclude lists the reading columns dropped unless configured otherwise
var DefaultExclude = []string{"interval_length", "measure_type"}

// ErrMalformedReading is returned for readings whose date or value cannot be parsed
var ErrMalformedReading = errors.New("malformed reading")

const (
	dateColumn  = "date"
	valueColumn = "value"
)

// Reconstructor turns raw payloads into a gap-free series
type Reconstructor struct {
	exclude map[string]bool
	tariff  float64
	logger  *slog.Logger
}

// Option configures a Reconstructor
type Option func(*Reconstructor)

// WithExclude replaces the default excluded columns
func WithExclude(columns ...string) Option {
	return func(r *Reconstructor) {
		r.exclude = make(map[string]bool, len(columns))
		for _, c := range columns {
			r.exclude[c] = true
		}
	}
}

// WithTariff sets the price per kWh used for the price column
func WithTariff(tariff float64) Option {
	return func(r *Reconstructor) { r.tariff = tariff }
}

// NewReconstructor creates a reconstructor. A nil logger discards skip warnings.
func NewReconstructor(log *slog.Logger, opts ...Option) *Reconstructor {
	r := &Reconstructor{tariff: DefaultTariff, logger: logger.OrDiscard(log)}
	WithExclude(DefaultExclude...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// envelope is the part of an API response holding the readings
type envelope struct {
	MeterReading *struct {
		IntervalReading *[]map[string]interface{} `json:"interval_reading"`
	} `json:"meter_reading"`
}

type reading struct {
	ts          time.Time
	consumption float64
	extra       map[string]float64
	// missing marks a null value; the slot is kept but holds no measurement
	missing bool
}

// Reconstruct merges payloads, in any order, into one series at granularity g.
// Payloads that cannot be decoded are skipped with a warning; if none can be
// decoded it returns models.ErrNoValidData.
func (r *Reconstructor) Reconstruct(payloads []models.RawPayload, g models.Granularity) (*TimeSeries, error) {
	raw := r.flatten(payloads)
	if raw == nil {
		return nil, models.ErrNoValidData
	}
	if len(raw) == 0 {
		return nil, models.ErrEmptySeries
	}

	readings, err := r.concatenate(raw, g)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(readings, func(i, j int) bool { return readings[i].ts.Before(readings[j].ts) })

	if g == models.Hourly {
		readings = resampleHourly(readings)
	} else {
		readings = dedupe(readings)
	}

	rows, dropped := gapFill(readings, g.Step())
	if dropped > 0 {
		r.logger.Debug("readings off the regular grid dropped", slog.Int("count", dropped))
	}

	for i := range rows {
		r.derive(&rows[i], g)
	}

	return &TimeSeries{Granularity: g, Rows: rows}, nil
}

// flatten returns the reading maps of every decodable payload. It returns nil
// when no payload could be decoded.
func (r *Reconstructor) flatten(payloads []models.RawPayload) []map[string]interface{} {
	var out []map[string]interface{}
	valid := 0
	for i, p := range payloads {
		dec := json.NewDecoder(bytes.NewReader(p))
		dec.UseNumber()

		var env envelope
		if err := dec.Decode(&env); err != nil {
			r.logger.Warn("unable to decode payload, skipping", slog.Int("payload", i), slog.String("error", err.Error()))
			continue
		}
		if env.MeterReading == nil || env.MeterReading.IntervalReading == nil {
			r.logger.Warn("payload has no meter_reading.interval_reading, skipping", slog.Int("payload", i))
			continue
		}

		valid++
		out = append(out, *env.MeterReading.IntervalReading...)
	}

	if valid == 0 {
		return nil
	}
	if out == nil {
		out = []map[string]interface{}{}
	}
	return out
}

// concatenate parses dates and values, shifts each timestamp from interval
// end to interval start, and keeps the numeric columns that are not excluded
func (r *Reconstructor) concatenate(raw []map[string]interface{}, g models.Granularity) ([]reading, error) {
	extraCols := r.numericColumns(raw)

	readings := make([]reading, 0, len(raw))
	for i, m := range raw {
		dateStr, ok := m[dateColumn].(string)
		if !ok {
			return nil, fmt.Errorf("%w: reading %d has no date", ErrMalformedReading, i)
		}
		ts, err := parseDate(strings.TrimSpace(dateStr), g)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %d date %q: %v", ErrMalformedReading, i, dateStr, err)
		}

		rd := reading{ts: ts.Add(-time.Second)}
		if raw, present := m[valueColumn]; present && raw == nil {
			rd.missing = true
			readings = append(readings, rd)
			continue
		}

		v, ok := toFloat(m[valueColumn])
		if !ok {
			return nil, fmt.Errorf("%w: reading %d value %v is not a number", ErrMalformedReading, i, m[valueColumn])
		}
		rd.consumption = v

		if len(extraCols) > 0 {
			rd.extra = make(map[string]float64, len(extraCols))
			for _, c := range extraCols {
				if x, ok := toFloat(m[c]); ok {
					rd.extra[c] = x
				}
			}
		}
		readings = append(readings, rd)
	}

	return readings, nil
}

// parseDate reads a reading date at granularity g. Daily readings that carry
// a time of day (max power peaks) are truncated to their date.
func parseDate(s string, g models.Granularity) (time.Time, error) {
	ts, err := time.Parse(g.Layout(), s)
	if err == nil || g != models.Daily {
		return ts, err
	}
	if peak, perr := time.Parse(models.Hourly.Layout(), s); perr == nil {
		return models.Date(peak), nil
	}
	return ts, err
}

// numericColumns lists the non-excluded columns whose every value is numeric
func (r *Reconstructor) numericColumns(raw []map[string]interface{}) []string {
	numeric := map[string]bool{}
	for _, m := range raw {
		for k, v := range m {
			if k == dateColumn || k == valueColumn || r.exclude[k] || v == nil {
				continue
			}
			_, ok := toFloat(v)
			if prev, seen := numeric[k]; seen {
				numeric[k] = prev && ok
			} else {
				numeric[k] = ok
			}
		}
	}

	var cols []string
	for k, ok := range numeric {
		if ok {
			cols = append(cols, k)
		} else {
			r.logger.Debug("dropping non-numeric column", slog.String("column", k))
		}
	}
	sort.Strings(cols)
	return cols
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// resampleHourly averages the readings of each clock hour, then sums rows
// sharing an hour. Null readings are left out of the mean; an hour holding
// only null readings stays missing. Input must be sorted.
func resampleHourly(in []reading) []reading {
	type bucket struct {
		ts    time.Time
		sum   reading
		count int
	}

	var means []reading
	var cur *bucket
	flush := func() {
		if cur == nil {
			return
		}
		if cur.count == 0 {
			means = append(means, reading{ts: cur.ts, missing: true})
			return
		}
		mean := reading{ts: cur.ts, consumption: cur.sum.consumption / float64(cur.count)}
		if cur.sum.extra != nil {
			mean.extra = make(map[string]float64, len(cur.sum.extra))
			for k, v := range cur.sum.extra {
				mean.extra[k] = v / float64(cur.count)
			}
		}
		means = append(means, mean)
	}

	for _, rd := range in {
		h := rd.ts.Truncate(time.Hour)
		if cur == nil || !cur.ts.Equal(h) {
			flush()
			cur = &bucket{ts: h}
		}
		if rd.missing {
			continue
		}
		cur.count++
		cur.sum.consumption += rd.consumption
		addExtra(&cur.sum, rd.extra)
	}
	flush()

	var out []reading
	for _, m := range means {
		m.ts = m.ts.Truncate(time.Hour)
		if n := len(out); n > 0 && out[n-1].ts.Equal(m.ts) {
			out[n-1].missing = out[n-1].missing && m.missing
			out[n-1].consumption += m.consumption
			addExtra(&out[n-1], m.extra)
			continue
		}
		out = append(out, m)
	}
	return out
}

func addExtra(dst *reading, extra map[string]float64) {
	if len(extra) == 0 {
		return
	}
	if dst.extra == nil {
		dst.extra = make(map[string]float64, len(extra))
	}
	for k, v := range extra {
		dst.extra[k] += v
	}
}

// dedupe keeps the first reading of each timestamp. Input must be sorted.
func dedupe(in []reading) []reading {
	out := in[:0:0]
	for _, rd := range in {
		if n := len(out); n > 0 && out[n-1].ts.Equal(rd.ts) {
			continue
		}
		out = append(out, rd)
	}
	return out
}

// gapFill lays the readings on the grid first..last every step. Missing slots
// and null readings get zero values and are marked filled; readings between
// grid slots are dropped and counted.
func gapFill(in []reading, step time.Duration) ([]Row, int) {
	if len(in) == 0 {
		return nil, 0
	}

	byTime := make(map[int64]reading, len(in))
	extraCols := map[string]bool{}
	for _, rd := range in {
		byTime[rd.ts.UnixNano()] = rd
		for k := range rd.extra {
			extraCols[k] = true
		}
	}

	first, last := in[0].ts, in[len(in)-1].ts
	rows := make([]Row, 0, int(last.Sub(first)/step)+1)
	matched := 0
	for t := first; !t.After(last); t = t.Add(step) {
		rd, ok := byTime[t.UnixNano()]
		row := Row{Timestamp: t, Consumption: rd.consumption, Filled: !ok || rd.missing}
		if ok {
			matched++
		}
		if len(extraCols) > 0 {
			row.Extra = make(map[string]float64, len(extraCols))
			for k := range extraCols {
				row.Extra[k] = rd.extra[k]
			}
		}
		rows = append(rows, row)
	}

	return rows, len(in) - matched
}

func (r *Reconstructor) derive(row *Row, g models.Granularity) {
	t := row.Timestamp
	row.Day = t.Weekday().String()
	row.Month = t.Month().String()
	row.Year = t.Year()

	if g != models.Hourly {
		return
	}
	row.Hour = float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	row.Daytime = Daytime(t.Hour())
	row.Price = Price(row.Consumption, r.tariff)
}
