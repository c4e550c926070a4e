package models

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for window bounds on the wire and in cache keys
const DateLayout = "2006-01-02"

// DateWindow is an inclusive range of calendar dates
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// NewDateWindow truncates both bounds to UTC dates and checks their order
func NewDateWindow(start, end time.Time) (DateWindow, error) {
	w := DateWindow{Start: Date(start), End: Date(end)}
	if w.Start.After(w.End) {
		return DateWindow{}, &InvalidRangeError{Start: w.Start, End: w.End}
	}
	return w, nil
}

// ParseDateWindow parses two YYYY-MM-DD dates into a window
func ParseDateWindow(start, end string) (DateWindow, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateWindow{}, fmt.Errorf("parsing start date: %w", err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateWindow{}, fmt.Errorf("parsing end date: %w", err)
	}
	return NewDateWindow(s, e)
}

// Date returns midnight UTC of t's calendar date
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns the number of calendar days covered, bounds included
func (w DateWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w DateWindow) String() string {
	return w.Start.Format(DateLayout) + "/" + w.End.Format(DateLayout)
}
