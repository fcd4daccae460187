package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/model"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test. Empty values fall back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT",
		"PUBLISHABLE_KEY_SECRET", "MEDUSA_BACKEND_URL", "MEDUSA_PUBLISHABLE_KEY",
		"BACKEND_TRANSPORT", "BACKEND_TIMEOUT", "STORE_TITLE", "DEFAULT_COUNTRY",
		"DEFAULT_PRODUCTS_PER_PAGE", "HOMEPAGE_COLLECTIONS", "CART_COOKIE_MAX_AGE",
		"COOKIE_SECURE", "REDIS_URL", "REGIONS_TTL", "CACHE_FRESHNESS",
		"CACHE_MAX_ENTRIES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDUSA_BACKEND_URL", "https://api.example.com/")
	t.Setenv("MEDUSA_PUBLISHABLE_KEY", "pk_123")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEFAULT_COUNTRY", "DE")
	t.Setenv("HOMEPAGE_COLLECTIONS", "sale, new-in ,")
	t.Setenv("CART_COOKIE_MAX_AGE", "48h")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://api.example.com", cfg.Backend.URL, "trailing slash trimmed")
	assert.Equal(t, "de", cfg.Storefront.DefaultCountry)
	assert.Equal(t, []string{"sale", "new-in"}, cfg.Storefront.HomepageCollections)
	assert.Equal(t, 48*time.Hour, cfg.Storefront.CartCookieMaxAge)
	assert.True(t, cfg.Storefront.CookieSecure)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEDUSA_BACKEND_URL", "http://localhost:9000")
	t.Setenv("MEDUSA_PUBLISHABLE_KEY", "pk_123")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "fr", cfg.Storefront.DefaultCountry)
	assert.Equal(t, 4, cfg.Storefront.ProductsPerPage)
	assert.Equal(t, []string{"latest-drops", "weekly-picks", "sale"}, cfg.Storefront.HomepageCollections)
	assert.Equal(t, "standard", cfg.Backend.Transport)
	assert.EqualValues(t, 10, cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoadFromDotEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, ".env", "MEDUSA_BACKEND_URL=http://localhost:9000\nMEDUSA_PUBLISHABLE_KEY=pk_dotenv\nSTORE_TITLE=Dotenv Store\n")
	t.Setenv("DOTENV_PATH", path)
	// godotenv never overrides a variable that is set, even to "".
	for _, k := range []string{"MEDUSA_BACKEND_URL", "MEDUSA_PUBLISHABLE_KEY", "STORE_TITLE"} {
		os.Unsetenv(k)
	}

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pk_dotenv", cfg.Backend.PublishableKey)
	assert.Equal(t, "Dotenv Store", cfg.Storefront.Title)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "config.yaml", `
port: "7070"
backend:
  url: https://api.example.com
  publishable_key: pk_file
  timeout: 5s
storefront:
  default_country: it
  homepage_collections: [sale]
cache:
  redis_url: redis://localhost:6379/0
`))

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "it", cfg.Storefront.DefaultCountry)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 4, cfg.Storefront.ProductsPerPage)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromJSONFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "config.json",
		`{"backend": {"url": "https://api.example.com", "publishable_key": "pk_json"}, "storefront": {"products_per_page": 12}}`))

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pk_json", cfg.Backend.PublishableKey)
	assert.Equal(t, 12, cfg.Storefront.ProductsPerPage)
}

func TestLoadFromFile_Missing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoadPublishableKeyFromSecretManager(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("GCP_PROJECT", "shop-prod")
	t.Setenv("PUBLISHABLE_KEY_SECRET", "storefront-pk")
	t.Setenv("MEDUSA_BACKEND_URL", "https://api.example.com")

	var gotName string
	orig := accessSecret
	accessSecret = func(_ context.Context, name string) ([]byte, error) {
		gotName = name
		return []byte("pk_secret\n"), nil
	}
	defer func() { accessSecret = orig }()

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "projects/shop-prod/secrets/storefront-pk/versions/latest", gotName)
	assert.Equal(t, "pk_secret", cfg.Backend.PublishableKey)
}

func TestLoadSecretRequiresProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PUBLISHABLE_KEY_SECRET", "storefront-pk")
	t.Setenv("MEDUSA_BACKEND_URL", "https://api.example.com")

	_, err := Load(context.Background())
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantErr   string
		wantIsCfg bool
	}{
		{
			name:      "missing backend url",
			env:       map[string]string{"MEDUSA_PUBLISHABLE_KEY": "pk"},
			wantErr:   "MEDUSA_BACKEND_URL is required",
			wantIsCfg: true,
		},
		{
			name:      "missing publishable key",
			env:       map[string]string{"MEDUSA_BACKEND_URL": "http://localhost:9000"},
			wantErr:   "MEDUSA_PUBLISHABLE_KEY is required",
			wantIsCfg: true,
		},
		{
			name:      "relative backend url",
			env:       map[string]string{"MEDUSA_BACKEND_URL": "localhost:9000/api", "MEDUSA_PUBLISHABLE_KEY": "pk"},
			wantErr:   "invalid MEDUSA_BACKEND_URL",
			wantIsCfg: true,
		},
		{
			name:    "unknown transport",
			env:     map[string]string{"MEDUSA_BACKEND_URL": "http://localhost:9000", "MEDUSA_PUBLISHABLE_KEY": "pk", "BACKEND_TRANSPORT": "firefox"},
			wantErr: "BACKEND_TRANSPORT",
		},
		{
			name:    "bad default country",
			env:     map[string]string{"MEDUSA_BACKEND_URL": "http://localhost:9000", "MEDUSA_PUBLISHABLE_KEY": "pk", "DEFAULT_COUNTRY": "france"},
			wantErr: "DEFAULT_COUNTRY",
		},
		{
			name:    "bad port",
			env:     map[string]string{"MEDUSA_BACKEND_URL": "http://localhost:9000", "MEDUSA_PUBLISHABLE_KEY": "pk", "PORT": "http"},
			wantErr: "invalid PORT",
		},
		{
			name:    "unknown environment",
			env:     map[string]string{"MEDUSA_BACKEND_URL": "http://localhost:9000", "MEDUSA_PUBLISHABLE_KEY": "pk", "ENVIRONMENT": "staging"},
			wantErr: "ENVIRONMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			if tt.wantIsCfg {
				assert.ErrorIs(t, err, model.ErrConfiguration)
			}
		})
	}
}

func TestSecretName(t *testing.T) {
	assert.Equal(t, "projects/p/secrets/s/versions/latest", secretName("p", "s"))
	full := "projects/p/secrets/s/versions/3"
	assert.Equal(t, full, secretName("other", full))
}
