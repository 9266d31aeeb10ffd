package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"peasurvey/internal/models"
)

// CredentialEnv is the environment variable holding the Gemini API key.
const CredentialEnv = "API_KEY"

// ErrMissingCredential is reported when no API key is present in the environment.
var ErrMissingCredential = errors.New("api key not found")

// ConfigurationError marks a fatal setup problem; no query may run while it stands.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig `mapstructure:"basic_config"`
	Model       ModelConfig `mapstructure:"model"`
	Redis       RedisConfig `mapstructure:"redis"`
	Geo         GeoConfig   `mapstructure:"geo"`

	// APIKey only ever comes from the environment.
	APIKey string `mapstructure:"-"`
}

type BasicConfig struct {
	ServerAddress            string   `mapstructure:"server_address" validate:"required"`
	SessionTTLMinutes        int      `mapstructure:"session_ttl_minutes" validate:"gte=0"`
	WorkerIdleTimeoutMinutes int      `mapstructure:"worker_idle_timeout_minutes" validate:"gte=0"`
	QueryRatePerMinute       int      `mapstructure:"query_rate_per_minute" validate:"gte=0"`
	AllowedOrigins           []string `mapstructure:"allowed_origins"`
}

type ModelConfig struct {
	Name        string  `mapstructure:"name" validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GeoConfig struct {
	Latitude  float64 `mapstructure:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `mapstructure:"longitude" validate:"gte=-180,lte=180"`
	LookupURL string  `mapstructure:"lookup_url" validate:"omitempty,url"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultModel         = "gemini-2.5-flash"
	DefaultTemperature   = 0.3
)

var validate = validator.New()

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error; every key has a default and may be
// overridden with a PEA_ prefixed environment variable. A .env file in the
// working directory is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("PEA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", CredentialEnv); err != nil {
		return nil, fmt.Errorf("bind %s: %w", CredentialEnv, err)
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(v.GetString("api_key"))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", DefaultServerAddress)
	v.SetDefault("basic_config.session_ttl_minutes", 120)
	v.SetDefault("basic_config.worker_idle_timeout_minutes", 5)
	v.SetDefault("basic_config.query_rate_per_minute", 20)
	v.SetDefault("basic_config.allowed_origins", []string{})
	v.SetDefault("model.name", DefaultModel)
	v.SetDefault("model.temperature", DefaultTemperature)
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("geo.latitude", 0)
	v.SetDefault("geo.longitude", 0)
	v.SetDefault("geo.lookup_url", "")
}

// RequireCredential returns a *ConfigurationError when the API key is absent.
func (c *Config) RequireCredential() error {
	if c == nil || c.APIKey == "" {
		return &ConfigurationError{Key: CredentialEnv, Err: ErrMissingCredential}
	}
	return nil
}

// StaticBias returns the configured fixed position, or nil when none is set.
func (c *Config) StaticBias() *models.GeoBias {
	if c == nil || (c.Geo.Latitude == 0 && c.Geo.Longitude == 0) {
		return nil
	}
	return &models.GeoBias{Latitude: c.Geo.Latitude, Longitude: c.Geo.Longitude}
}

func (b BasicConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLMinutes) * time.Minute
}

func (b BasicConfig) WorkerIdleTimeout() time.Duration {
	return time.Duration(b.WorkerIdleTimeoutMinutes) * time.Minute
}

// ConfigPath returns the config file location from PEA_CONFIG.
func ConfigPath() string {
	return os.Getenv("PEA_CONFIG")
}
