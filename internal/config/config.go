// Package config loads client configuration from defaults, a YAML file,
// .env files and WAYFARER_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix      = "WAYFARER_"
	configFileName = "config.yaml"
	dirName        = ".wayfarer"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the client configuration.
type Config struct {
	ServerURL       string        `yaml:"server_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RevalidateAfter time.Duration `yaml:"revalidate_after"`

	// StorageDir holds tokens, the user record and cached collections.
	StorageDir string `yaml:"storage_dir"`

	// HTTPCacheDir enables an on-disk HTTP cache for cacheable GETs when set.
	HTTPCacheDir string `yaml:"http_cache_dir"`

	// RateLimit is the outbound request rate per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	TelemetryEndpoint string `yaml:"telemetry_endpoint"`
	Debug             bool   `yaml:"debug"`
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// File is the YAML config file. Empty uses config.yaml in the storage
	// dir, which may be absent; an explicit file must exist.
	File string

	// EnvFiles are loaded with godotenv. Empty uses ".env" if present.
	EnvFiles []string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL:       "http://localhost:3000/api",
		RequestTimeout:  30 * time.Second,
		RefreshTimeout:  15 * time.Second,
		CacheTTL:        time.Hour,
		RevalidateAfter: 5 * time.Minute,
		StorageDir:      DefaultDir(),
		RateBurst:       1,
	}
}

// DefaultDir returns ~/.wayfarer, or .wayfarer if the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// Load builds the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(opts.File); err != nil {
		return nil, err
	}

	loadEnvFiles(opts.EnvFiles)
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(getEnv("STORAGE_DIR", c.StorageDir), configFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("loaded config file")

	return nil
}

func loadEnvFiles(files []string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.Debug().Err(err).Str("path", f).Msg("skipping env file")
		}
	}
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("SERVER_URL", c.ServerURL)
	c.RequestTimeout = getDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.RefreshTimeout = getDuration("REFRESH_TIMEOUT", c.RefreshTimeout)
	c.CacheTTL = getDuration("CACHE_TTL", c.CacheTTL)
	c.RevalidateAfter = getDuration("REVALIDATE_AFTER", c.RevalidateAfter)
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.HTTPCacheDir = getEnv("HTTP_CACHE_DIR", c.HTTPCacheDir)
	c.RateLimit = getFloat("RATE_LIMIT", c.RateLimit)
	c.RateBurst = getInt("RATE_BURST", c.RateBurst)
	c.TelemetryEndpoint = getEnv("TELEMETRY_ENDPOINT", c.TelemetryEndpoint)
	c.Debug = getBool("DEBUG", c.Debug)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: server URL %q must be an absolute http(s) URL", ErrInvalidConfig, c.ServerURL)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}

	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("%w: refresh timeout must be positive", ErrInvalidConfig)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache TTL must be positive", ErrInvalidConfig)
	}

	if c.RevalidateAfter < 0 || c.RevalidateAfter > c.CacheTTL {
		return fmt.Errorf("%w: revalidate after must be between 0 and the cache TTL", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.StorageDir) == "" {
		return fmt.Errorf("%w: storage dir cannot be empty", ErrInvalidConfig)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}

	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: rate burst must be at least 1", ErrInvalidConfig)
	}

	return nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", envPrefix+key).Msg("ignoring invalid integer")
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", envPrefix+key).Msg("ignoring invalid number")
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("key", envPrefix+key).Msg("ignoring invalid boolean")
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", envPrefix+key).Msg("ignoring invalid duration")
		return fallback
	}

	return v
}
