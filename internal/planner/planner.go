// Package planner splits a requested date range into windows the metering
// API accepts in a single call.
package planner

import (
	"log/slog"
	"time"

	"github.com/jgoulah/meterfetch/internal/logger"
	"github.com/jgoulah/meterfetch/pkg/models"
)

// Planner produces window sequences for one endpoint kind at a time
type Planner struct {
	// MaxWindows caps the number of load curve windows (0 = no cap)
	MaxWindows int
	logger     *slog.Logger
}

// New creates a planner. A nil logger discards clamp notices.
func New(log *slog.Logger, maxWindows int) *Planner {
	return &Planner{MaxWindows: maxWindows, logger: logger.OrDiscard(log)}
}

// Plan validates rng and returns the windows to fetch for kind
func (p *Planner) Plan(rng models.DateWindow, kind models.EndpointKind) (*Sequence, error) {
	rng = models.DateWindow{Start: models.Date(rng.Start), End: models.Date(rng.End)}
	if rng.Start.After(rng.End) {
		return nil, &models.InvalidRangeError{Start: rng.Start, End: rng.End}
	}

	if kind.IsDaily() {
		w, clamped := ClampDaily(rng)
		if clamped {
			p.logger.Warn("daily range exceeds the endpoint history limit, start date updated",
				slog.Int("max_months", models.DailyMaxMonths),
				slog.String("requested_start", rng.Start.Format(models.DateLayout)),
				slog.String("start", w.Start.Format(models.DateLayout)),
			)
		}
		return &Sequence{rng: w, kind: kind, cursor: w.End, clamped: clamped}, nil
	}

	return &Sequence{rng: rng, kind: kind, cursor: rng.End, max: p.MaxWindows}, nil
}

// ClampDaily shrinks rng so it spans at most DailyMaxMonths, keeping its end.
// The earliest start is end minus DailyMaxMonths calendar months, moved back
// to the last day of the month when that day does not exist (29 Feb 2024
// gives 28 Feb 2021).
func ClampDaily(rng models.DateWindow) (models.DateWindow, bool) {
	earliest := addMonths(rng.End, -models.DailyMaxMonths)
	if !rng.Start.Before(earliest) {
		return rng, false
	}
	return models.DateWindow{Start: earliest, End: rng.End}, true
}

// addMonths shifts t by n calendar months without overflowing into the
// following month
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Sequence yields windows one at a time. It owns its cursor and cannot be
// rewound; callers drain it or drop it.
type Sequence struct {
	rng     models.DateWindow
	kind    models.EndpointKind
	cursor  time.Time
	max     int
	emitted int
	done    bool
	clamped bool
}

// Range returns the range the sequence covers, after any clamping
func (s *Sequence) Range() models.DateWindow {
	return s.rng
}

// Clamped reports whether a daily range was shortened
func (s *Sequence) Clamped() bool {
	return s.clamped
}

// Next returns the next window, most recent first
func (s *Sequence) Next() (models.DateWindow, bool) {
	if s.done {
		return models.DateWindow{}, false
	}

	if s.kind.IsDaily() {
		s.done = true
		s.emitted++
		return s.rng, true
	}

	if s.max > 0 && s.emitted >= s.max {
		s.done = true
		return models.DateWindow{}, false
	}

	monday := weekStart(s.cursor)
	w := models.DateWindow{Start: monday.AddDate(0, 0, -1), End: s.cursor}
	s.cursor = w.Start
	s.emitted++

	// the window reaching past the range start is the last one
	if w.Start.Before(s.rng.Start) {
		s.done = true
	}

	return w, true
}

// weekStart returns the Monday on or before t
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
