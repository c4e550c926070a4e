package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// Environment variables that override the file, typically set through .env
const (
	EnvUsagePointID = "METERFETCH_USAGE_POINT_ID"
	EnvAccessToken  = "METERFETCH_ACCESS_TOKEN"
)

// Cache backends
const (
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config holds the application configuration
type Config struct {
	API           APIConfig   `yaml:"api"`
	Cache         CacheConfig `yaml:"cache,omitempty"`
	MaxAPICalls   int         `yaml:"max_api_calls,omitempty"`   // Load curve call budget (fallback: 50)
	Tariff        float64     `yaml:"tariff,omitempty"`          // Price per kWh (fallback: 0.09)
	Exclude       []string    `yaml:"exclude_columns,omitempty"` // Reading columns to drop (fallback: interval_length, measure_type)
	LogLevel      string      `yaml:"log_level,omitempty"`       // debug, info, warn, error
	HomeAssistant HAConfig    `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig  `yaml:"mqtt,omitempty"`
}

// APIConfig holds the metering API credentials and endpoint
type APIConfig struct {
	UsagePointID      string  `yaml:"usage_point_id" validate:"required"`
	AccessToken       string  `yaml:"access_token" validate:"required"`
	BaseURL           string  `yaml:"base_url,omitempty" validate:"omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" validate:"gte=0"`
}

// CacheConfig selects where raw responses are kept between runs
type CacheConfig struct {
	Backend     string `yaml:"backend,omitempty"`      // file (default), sqlite, redis, memory
	Dir         string `yaml:"dir,omitempty"`          // file backend directory (default: data/raw)
	RedisAddr   string `yaml:"redis_addr,omitempty"`   // e.g. "localhost:6379"
	RedisPrefix string `yaml:"redis_prefix,omitempty"` // key prefix (default: meterfetch:raw:)
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://yourdomain.local:5050"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.linky_consumption"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // default: meterfetch
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the config file, then applies environment overrides. A missing
// file yields an empty config.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvUsagePointID)); v != "" {
		c.API.UsagePointID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAccessToken)); v != "" {
		c.API.AccessToken = v
	}
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// ValidateAPI checks the API section before any network activity
func (c *Config) ValidateAPI() error {
	if err := validate.Struct(c.API); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			missing := false
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("api.%s (%s)", yamlName(fe.StructField()), fe.Tag()))
				if fe.Tag() == "required" {
					missing = true
				}
			}
			if missing {
				return fmt.Errorf("%w: %s", models.ErrMissingCredentials, strings.Join(fields, ", "))
			}
			return fmt.Errorf("invalid api config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("validating api config: %w", err)
	}
	return nil
}

func yamlName(field string) string {
	switch field {
	case "UsagePointID":
		return "usage_point_id"
	case "AccessToken":
		return "access_token"
	case "BaseURL":
		return "base_url"
	case "RequestsPerSecond":
		return "requests_per_second"
	default:
		return strings.ToLower(field)
	}
}

// GetMaxAPICalls returns the load curve call budget with a default of 50
func (c *Config) GetMaxAPICalls() int {
	if c.MaxAPICalls <= 0 {
		return 50
	}
	return c.MaxAPICalls
}

// GetTariff returns the price per kWh with a default of 0.09
func (c *Config) GetTariff() float64 {
	if c.Tariff <= 0 {
		return 0.09
	}
	return c.Tariff
}

// GetCacheBackend returns the configured cache backend, defaulting to file
func (c *Config) GetCacheBackend() string {
	if c.Cache.Backend == "" {
		return CacheFile
	}
	return strings.ToLower(c.Cache.Backend)
}

// GetCacheDir returns the file cache directory with a default of data/raw
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir == "" {
		return filepath.Join("data", "raw")
	}
	return c.Cache.Dir
}

// GetTopicPrefix returns the MQTT topic prefix with a default of meterfetch
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "meterfetch"
	}
	return c.MQTT.TopicPrefix
}
