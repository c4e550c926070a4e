package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCredentials is returned when the usage point id or access token is empty
	ErrMissingCredentials = errors.New("missing usage point id or access token")

	// ErrUnknownEndpoint is returned for endpoint names outside the authorized list
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrWrongEndpoint is returned when an endpoint is passed to the wrong fetch path
	ErrWrongEndpoint = errors.New("endpoint not supported by this fetch path")

	// ErrNoValidData is returned when no payload could be flattened
	ErrNoValidData = errors.New("no valid payload to reconstruct")

	// ErrEmptySeries is returned when the valid payloads hold no readings
	ErrEmptySeries = errors.New("payloads contain no readings")
)

// InvalidRangeError reports a window whose end precedes its start
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: end date %s is before start date %s",
		e.End.Format(DateLayout), e.Start.Format(DateLayout))
}

// FetchError reports a failed call for one window. Status is 0 when the
// request never got a response, in which case Err holds the transport error.
type FetchError struct {
	Window DateWindow
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.Window, e.Err)
	}
	return fmt.Sprintf("fetching %s: API returned status %d: %s", e.Window, e.Status, e.Body)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
