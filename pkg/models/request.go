package models

import "log/slog"

// RawPayload is a response body exactly as the API returned it
type RawPayload []byte

// FetchRequest describes one call to the metering API
type FetchRequest struct {
	UsagePointID string
	AccessToken  string
	Endpoint     EndpointKind
	Window       DateWindow
}

// Validate checks that both credentials are present
func (r FetchRequest) Validate() error {
	if r.UsagePointID == "" || r.AccessToken == "" {
		return ErrMissingCredentials
	}
	return nil
}

// WithWindow returns a copy of r targeting w
func (r FetchRequest) WithWindow(w DateWindow) FetchRequest {
	r.Window = w
	return r
}

// LogValue keeps the access token out of logs
func (r FetchRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("usage_point_id", r.UsagePointID),
		slog.String("endpoint", r.Endpoint.String()),
		slog.String("window", r.Window.String()),
	)
}
