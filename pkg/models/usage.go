package models

import "time"

// UsageData represents one stored slot of a reconstructed series
type UsageData struct {
	ID           int       `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UsagePointID string    `json:"usage_point_id"`
	Endpoint     string    `json:"endpoint"` // "consumption_load_curve", "daily_consumption", ...
	Consumption  float64   `json:"consumption"`
	Price        float64   `json:"price,omitempty"`
	Filled       bool      `json:"filled"` // true when the slot was inserted by gap filling
}
