package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfetch/internal/cache"
	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/internal/database"
	"github.com/jgoulah/meterfetch/internal/logger"
)

var (
	cfgFile  string
	dbPath   string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "meterfetch",
	Short: "Fetch electricity metering data from the myelectricaldata API",
	Long: `meterfetch retrieves daily and half-hourly consumption for a usage point,
caches the raw API responses, rebuilds a gap-free series and stores it in a
local SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newLogger builds the run logger from the flag or config level
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logger.WithRunID(logger.New(level))
}

// openCache returns the configured raw payload cache and a func releasing it
func openCache(cfg *config.Config, db *database.DB) (cache.Cache, func(), error) {
	noop := func() {}

	switch backend := cfg.GetCacheBackend(); backend {
	case config.CacheFile:
		return cache.NewFile(cfg.GetCacheDir()), noop, nil
	case config.CacheSQLite:
		return db, noop, nil
	case config.CacheMemory:
		return cache.NewMemory(), noop, nil
	case config.CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			return nil, nil, fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		return cache.NewRedis(client, cfg.Cache.RedisPrefix), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s (available: file, sqlite, redis, memory)", backend)
	}
}
