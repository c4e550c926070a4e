package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterfetch/internal/cache"
	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/internal/database"
	"github.com/jgoulah/meterfetch/pkg/models"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("7d")
	require.NoError(t, err)
	assert.Equal(t, models.Date(time.Now().AddDate(0, 0, -7)), got)

	_, err = parseDate("last week")
	assert.Error(t, err)
}

func TestFilterByDate(t *testing.T) {
	at := func(d int) models.UsageData {
		return models.UsageData{Timestamp: time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)}
	}
	data := []models.UsageData{at(1), at(2), at(3), at(4)}

	assert.Len(t, filterByDate(data, nil, nil), 4)

	since := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 3, 23, 59, 59, 0, time.UTC)
	got := filterByDate(data, &since, &until)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Timestamp.Day())
	assert.Equal(t, 3, got[1].Timestamp.Day())
}

func TestOpenCache_Backends(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)

	cases := []struct {
		cfg  config.CacheConfig
		want any
	}{
		{config.CacheConfig{}, &cache.File{}},
		{config.CacheConfig{Backend: "sqlite"}, &database.DB{}},
		{config.CacheConfig{Backend: "memory"}, &cache.Memory{}},
		{config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr()}, &cache.Redis{}},
	}
	for _, tc := range cases {
		c, release, err := openCache(&config.Config{Cache: tc.cfg}, db)
		require.NoError(t, err, tc.cfg.Backend)
		assert.IsType(t, tc.want, c)
		release()
	}

	_, _, err = openCache(&config.Config{Cache: config.CacheConfig{Backend: "redis"}}, db)
	assert.ErrorContains(t, err, "redis_addr")

	_, _, err = openCache(&config.Config{Cache: config.CacheConfig{Backend: "s3"}}, db)
	assert.ErrorContains(t, err, "unknown cache backend")
}

func TestWriteTemplateConfig(t *testing.T) {
	t.Setenv(config.EnvUsagePointID, "")
	t.Setenv(config.EnvAccessToken, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeTemplateConfig(path, false))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, templateConfig(), cfg)
	assert.ErrorIs(t, cfg.ValidateAPI(), models.ErrMissingCredentials, "template carries no credentials")

	err = writeTemplateConfig(path, false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, writeTemplateConfig(path, true))
}

func TestRunFetch_NoValidDataFails(t *testing.T) {
	t.Setenv(config.EnvUsagePointID, "")
	t.Setenv(config.EnvAccessToken, "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no meter_reading"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "config.yaml")
	dbPath = filepath.Join(dir, "data.db")
	fetchStart, fetchEnd = "2024-01-01", "2024-01-31"
	t.Cleanup(func() { cfgFile, dbPath, fetchStart, fetchEnd = "", "", "", "" })

	require.NoError(t, config.Save(cfgFile, &config.Config{
		API:   config.APIConfig{UsagePointID: "1", AccessToken: "t", BaseURL: srv.URL},
		Cache: config.CacheConfig{Backend: config.CacheMemory},
	}))

	fetchCmd.SetContext(context.Background())
	err := runFetch(fetchCmd, []string{"daily_consumption"})
	assert.ErrorIs(t, err, models.ErrNoValidData)
}
