package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/pkg/models"
)

func haServer(t *testing.T, handler http.HandlerFunc) config.HAConfig {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return config.HAConfig{Enabled: true, URL: srv.URL, Token: "secret", EntityID: "sensor.linky"}
}

func TestNew_RequiresTarget(t *testing.T) {
	_, err := New(config.MQTTConfig{}, config.HAConfig{}, "meterfetch", nil)
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = New(config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: "http://ha"}, "meterfetch", nil)
	assert.ErrorContains(t, err, "token")

	_, err = New(config.MQTTConfig{Enabled: true}, config.HAConfig{}, "meterfetch", nil)
	assert.ErrorContains(t, err, "broker")
}

func TestPublish_BackfillsHomeAssistant(t *testing.T) {
	var got HAPayload
	ha := haServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdaemon/backfill_state", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	p, err := New(config.MQTTConfig{}, ha, "meterfetch", nil)
	require.NoError(t, err)
	defer p.Close()

	reading := models.UsageData{
		Timestamp:    time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		UsagePointID: "1",
		Endpoint:     "consumption_load_curve",
		Consumption:  512.345,
	}
	require.NoError(t, p.Publish(context.Background(), reading))

	assert.Equal(t, "sensor.linky", got.EntityID)
	assert.Equal(t, "512.35", got.State)
	assert.Equal(t, "2024-03-04T10:00:00Z", got.LastChanged)
	assert.Equal(t, "meterfetch/1/consumption_load_curve", p.Topic(reading))
}

func TestPublish_ReportsHTTPError(t *testing.T) {
	ha := haServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	p, err := New(config.MQTTConfig{}, ha, "meterfetch", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), models.UsageData{Timestamp: time.Now()})
	assert.ErrorContains(t, err, "status 502")
}

func TestGenerateStatistics(t *testing.T) {
	ha := haServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdaemon/generate_statistics", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sensor.linky", body["entity_id"])
		w.Write([]byte(`{"inserted":3,"updated":1,"total_hours":4}`))
	})

	p, err := New(config.MQTTConfig{}, ha, "meterfetch", nil)
	require.NoError(t, err)

	res, err := p.GenerateStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatsResult{Inserted: 3, Updated: 1, TotalHours: 4}, *res)
}

func TestGenerateStatistics_TruncatedResponse(t *testing.T) {
	ha := haServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte(`{"inserted":3`))
	})

	p, err := New(config.MQTTConfig{}, ha, "meterfetch", nil)
	require.NoError(t, err)

	_, err = p.GenerateStatistics(context.Background())
	assert.ErrorContains(t, err, "reading response")
}
