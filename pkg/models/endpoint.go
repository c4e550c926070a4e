package models

import (
	"fmt"
	"strings"
	"time"
)

// EndpointKind identifies one of the metering API endpoints
type EndpointKind int

const (
	LoadCurve EndpointKind = iota
	DailyConsumption
	DailyMaxPower
)

const (
	// LoadCurveMaxDays is the longest span the load curve endpoint accepts per call
	LoadCurveMaxDays = 7
	// DailyMaxMonths is the longest history the daily endpoints accept
	DailyMaxMonths = 36
)

var endpointNames = map[EndpointKind]string{
	LoadCurve:        "consumption_load_curve",
	DailyConsumption: "daily_consumption",
	DailyMaxPower:    "daily_consumption_max_power",
}

// Endpoints lists the authorized endpoints
func Endpoints() []EndpointKind {
	return []EndpointKind{LoadCurve, DailyConsumption, DailyMaxPower}
}

// ParseEndpointKind maps an API endpoint name to its kind, case-insensitively
func ParseEndpointKind(s string) (EndpointKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range endpointNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (authorized: %s, %s, %s)", ErrUnknownEndpoint, s,
		endpointNames[LoadCurve], endpointNames[DailyConsumption], endpointNames[DailyMaxPower])
}

func (k EndpointKind) String() string {
	if n, ok := endpointNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EndpointKind(%d)", int(k))
}

// IsDaily reports whether k is one of the daily aggregate endpoints
func (k EndpointKind) IsDaily() bool {
	return k == DailyConsumption || k == DailyMaxPower
}

// Granularity returns the series frequency the endpoint's readings describe
func (k EndpointKind) Granularity() Granularity {
	if k.IsDaily() {
		return Daily
	}
	return Hourly
}

// Granularity is the frequency of a reconstructed series
type Granularity int

const (
	Hourly Granularity = iota
	Daily
)

// Layout returns the timestamp layout of readings at this granularity
func (g Granularity) Layout() string {
	if g == Daily {
		return DateLayout
	}
	return "2006-01-02 15:04:05"
}

// Step returns the distance between two consecutive grid slots
func (g Granularity) Step() time.Duration {
	if g == Daily {
		return 24 * time.Hour
	}
	return time.Hour
}

func (g Granularity) String() string {
	if g == Daily {
		return "daily"
	}
	return "hourly"
}
