package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// HAPayload matches the Home Assistant backfill service call data
type HAPayload struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	LastUpdated string `json:"last_updated"`
}

// StatsResult is the AppDaemon generate_statistics response
type StatsResult struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	TotalHours int `json:"total_hours"`
}

func (p *Publisher) backfill(ctx context.Context, reading models.UsageData) error {
	// Slot start is used for both last_changed and last_updated
	timestamp := reading.Timestamp.UTC().Format(time.RFC3339)
	payload := HAPayload{
		EntityID:    p.haConfig.EntityID,
		State:       fmt.Sprintf("%.2f", reading.Consumption),
		LastChanged: timestamp,
		LastUpdated: timestamp,
	}

	_, err := p.post(ctx, p.http, "/api/appdaemon/backfill_state", payload)
	return err
}

// GenerateStatistics asks AppDaemon to compile statistics from the
// backfilled states of the configured entity.
func (p *Publisher) GenerateStatistics(ctx context.Context) (*StatsResult, error) {
	if !p.haConfig.Enabled {
		return nil, fmt.Errorf("Home Assistant is not enabled in config")
	}

	// statistics generation takes much longer than a single backfill
	client := &http.Client{Timeout: 60 * time.Second}
	body, err := p.post(ctx, client, "/api/appdaemon/generate_statistics", map[string]string{
		"entity_id": p.haConfig.EntityID,
	})
	if err != nil {
		return nil, err
	}

	var result StatsResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &result, nil
}

func (p *Publisher) post(ctx context.Context, client *http.Client, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.haConfig.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	// Send request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}
	if readErr != nil {
		return nil, fmt.Errorf("reading response: %w", readErr)
	}
	return respBody, nil
}
