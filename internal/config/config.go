// Package config handles loading and validation of gateway configuration.
// Supports development (.env and environment variables), file-based
// (CONFIG_FILE) and production (Secret Manager) modes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storefront-gateway/internal/model"
	"storefront-gateway/internal/region"
)

// Config holds all gateway configuration.
// Environment determines whether the publishable key may load from Secret
// Manager (production) or must be set directly (development).
type Config struct {
	// Server settings
	Port        string `env:"PORT" envDefault:"8080" yaml:"port"`
	Environment string `env:"ENVIRONMENT" envDefault:"development" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`

	// GCP settings (production secret lookup)
	GCPProject           string `env:"GCP_PROJECT" yaml:"gcp_project"`
	PublishableKeySecret string `env:"PUBLISHABLE_KEY_SECRET" yaml:"publishable_key_secret"`

	Backend    BackendConfig    `yaml:"backend"`
	Storefront StorefrontConfig `yaml:"storefront"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// BackendConfig locates the commerce backend store API.
type BackendConfig struct {
	URL            string        `env:"MEDUSA_BACKEND_URL" yaml:"url"`
	PublishableKey string        `env:"MEDUSA_PUBLISHABLE_KEY" yaml:"publishable_key"`
	Transport      string        `env:"BACKEND_TRANSPORT" envDefault:"standard" yaml:"transport"`
	Timeout        time.Duration `env:"BACKEND_TIMEOUT" envDefault:"30s" yaml:"timeout"`
}

// StorefrontConfig holds storefront behavior settings.
type StorefrontConfig struct {
	Title               string        `env:"STORE_TITLE" envDefault:"Storefront" yaml:"title"`
	DefaultCountry      string        `env:"DEFAULT_COUNTRY" envDefault:"fr" yaml:"default_country"`
	ProductsPerPage     int           `env:"DEFAULT_PRODUCTS_PER_PAGE" envDefault:"4" yaml:"products_per_page"`
	HomepageCollections []string      `env:"HOMEPAGE_COLLECTIONS" envDefault:"latest-drops,weekly-picks,sale" envSeparator:"," yaml:"homepage_collections"`
	CartCookieMaxAge    time.Duration `env:"CART_COOKIE_MAX_AGE" envDefault:"720h" yaml:"cart_cookie_max_age"`
	CookieSecure        bool          `env:"COOKIE_SECURE" yaml:"cookie_secure"`
}

// CacheConfig selects the cache store.
type CacheConfig struct {
	RedisURL   string        `env:"REDIS_URL" yaml:"redis_url"`
	TTL        time.Duration `env:"REGIONS_TTL" envDefault:"1h" yaml:"ttl"`
	Freshness  time.Duration `env:"CACHE_FRESHNESS" envDefault:"1m" yaml:"freshness"`
	MaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000" yaml:"max_entries"`
}

// RateLimitConfig bounds API mutations per client IP.
type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10" yaml:"rps"`
	Burst int     `env:"RATE_LIMIT_BURST" envDefault:"20" yaml:"burst"`
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → .env + environment variables.
// In production a missing publishable key is fetched from Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	var cfg *Config
	var err error
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		cfg, err = loadFromFile(configPath)
	} else {
		cfg, err = loadFromEnv(envOrDefault("DOTENV_PATH", ".env"))
	}
	if err != nil {
		return nil, err
	}

	if cfg.IsProduction() && cfg.Backend.PublishableKey == "" && cfg.PublishableKeySecret != "" {
		if cfg.GCPProject == "" {
			return nil, model.NewConfigError("GCP_PROJECT required to read the publishable key secret")
		}
		key, err := accessSecret(ctx, secretName(cfg.GCPProject, cfg.PublishableKeySecret))
		if err != nil {
			return nil, fmt.Errorf("loading publishable key: %w", err)
		}
		cfg.Backend.PublishableKey = strings.TrimSpace(string(key))
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv parses environment variables after applying an optional
// dotenv file. Variables already set in the process win over the file.
func loadFromEnv(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", dotenvPath, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// loadFromFile reads all configuration from a YAML file. JSON files are
// accepted too since JSON documents parse as YAML. Unset keys keep their
// defaults.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config holding only the envDefault values.
func defaults() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return &cfg, nil
}

// accessSecret fetches a secret version payload. Replaced in tests.
var accessSecret = func(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return result.Payload.Data, nil
}

// secretName builds the Secret Manager resource name. A secret given as a
// full resource path is used as is.
func secretName(project, secret string) string {
	if strings.HasPrefix(secret, "projects/") {
		return secret
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, secret)
}

func (c *Config) normalize() {
	c.Backend.URL = strings.TrimSuffix(strings.TrimSpace(c.Backend.URL), "/")
	c.Storefront.DefaultCountry = region.NormalizeCode(c.Storefront.DefaultCountry)

	handles := c.Storefront.HomepageCollections[:0]
	for _, h := range c.Storefront.HomepageCollections {
		if h = strings.TrimSpace(h); h != "" {
			handles = append(handles, h)
		}
	}
	c.Storefront.HomepageCollections = handles
}

// validate checks that all required configuration fields are present.
// Backend URL and publishable key problems are configuration errors.
func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return model.NewConfigError("MEDUSA_BACKEND_URL is required")
	}
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return model.NewConfigError(fmt.Sprintf("invalid MEDUSA_BACKEND_URL %q", c.Backend.URL))
	}
	if c.Backend.PublishableKey == "" {
		return model.NewConfigError("MEDUSA_PUBLISHABLE_KEY is required")
	}

	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Environment)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	switch c.Backend.Transport {
	case "standard", "chrome":
	default:
		return fmt.Errorf("BACKEND_TRANSPORT must be standard or chrome, got %q", c.Backend.Transport)
	}

	if c.Storefront.DefaultCountry == "" {
		return fmt.Errorf("DEFAULT_COUNTRY must be an ISO 3166-1 alpha-2 code")
	}
	if c.Storefront.ProductsPerPage <= 0 {
		return fmt.Errorf("DEFAULT_PRODUCTS_PER_PAGE must be positive")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
