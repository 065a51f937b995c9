package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects the State/Token store implementation. It is resolved once at startup.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreMongo    StoreBackend = "mongo"
	StoreRedis    StoreBackend = "redis"
)

// CredentialMode states whether shop tokens are sealed before they reach storage.
type CredentialMode string

const (
	CredentialPlaintext CredentialMode = "plaintext"
	CredentialEncrypted CredentialMode = "encrypted"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string

	// DATABASE_URL: runtime connection string for postgres or mongo.
	// DIRECT_URL: direct postgres connection for migrations (bypasses poolers).
	DatabaseURL string
	DirectURL   string

	// PublicBaseURL is the externally reachable URL for this backend (required for webhook registration).
	PublicBaseURL string

	DB    DBConfig
	Store StoreConfig

	Shopify ShopifyConfig

	// AppSecret is the passphrase the credential cipher derives its key from.
	AppSecret      string
	CredentialMode CredentialMode

	// AllowedOrigins may call the session-token endpoint from the embedded admin frontend.
	AllowedOrigins []string

	Telemetry TelemetryConfig
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type StoreConfig struct {
	Backend StoreBackend

	// MongoDB is the database name used by the mongo backend.
	MongoDB string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// StateTTL bounds how long an OAuth state nonce stays consumable. Zero disables expiry.
	StateTTL time.Duration
}

type ShopifyConfig struct {
	APIKey      string
	APISecret   string
	Scopes      string
	RedirectURL string

	// WebhookSecret signs webhook deliveries. Falls back to APISecret when unset.
	WebhookSecret string

	APIVersion string

	// ExchangeTimeout bounds the code-for-token call made during the OAuth callback.
	ExchangeTimeout time.Duration
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":4000"
		}
	}

	appSecret := os.Getenv("APP_SECRET")
	mode := CredentialMode(strings.ToLower(os.Getenv("CREDENTIAL_MODE")))
	if mode == "" {
		mode = CredentialPlaintext
		if appSecret != "" {
			mode = CredentialEncrypted
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "shopifybridge"),
			User:     env("DB_USER", "shopifybridge"),
			Password: env("DB_PASSWORD", "shopifybridge"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Backend:       StoreBackend(strings.ToLower(env("STORE_BACKEND", string(StoreMemory)))),
			MongoDB:       os.Getenv("MONGO_DB"),
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       envInt("REDIS_DB", 0),
			StateTTL:      envDuration("OAUTH_STATE_TTL", 10*time.Minute),
		},
		Shopify: ShopifyConfig{
			APIKey:          os.Getenv("SHOPIFY_API_KEY"),
			APISecret:       os.Getenv("SHOPIFY_API_SECRET"),
			Scopes:          env("SHOPIFY_SCOPES", "read_products,read_orders"),
			RedirectURL:     os.Getenv("SHOPIFY_REDIRECT_URI"),
			WebhookSecret:   os.Getenv("SHOPIFY_WEBHOOK_SECRET"),
			APIVersion:      env("SHOPIFY_API_VERSION", "2025-10"),
			ExchangeTimeout: envDuration("SHOPIFY_EXCHANGE_TIMEOUT", 15*time.Second),
		},
		AppSecret:      appSecret,
		CredentialMode: mode,
		AllowedOrigins: envList("ALLOWED_ORIGINS", "http://localhost:5173"),
		Telemetry: TelemetryConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "shopifybridge"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}
}

// IsProd reports whether the service runs with production safeguards.
func (c Config) IsProd() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// ErrMissingShopifyCredentials is returned by Validate outside prod as a warning only.
var ErrMissingShopifyCredentials = errors.New("SHOPIFY_API_KEY and SHOPIFY_API_SECRET should be set for Shopify integrations")

// Validate rejects configurations the service cannot safely run with.
// Outside prod a missing Shopify app credential pair is reported through warn instead of failing.
func (c Config) Validate(warn func(error)) error {
	if err := validatePort(c.HTTPAddr); err != nil {
		return err
	}

	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		// DATABASE_URL wins; otherwise the DB_* parts (with local defaults) are used.
		if c.IsProd() && strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required in production when STORE_BACKEND is postgres")
		}
	case StoreMongo:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is mongo")
		}
		if c.IsProd() && strings.TrimSpace(c.Store.MongoDB) == "" {
			return fmt.Errorf("MONGO_DB must be explicitly set in production when STORE_BACKEND is mongo")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q. Must be one of: memory, postgres, mongo, redis", c.Store.Backend)
	}

	switch c.CredentialMode {
	case CredentialPlaintext:
		if c.IsProd() {
			return fmt.Errorf("CREDENTIAL_MODE plaintext is not allowed in production")
		}
	case CredentialEncrypted:
		if c.AppSecret == "" {
			return fmt.Errorf("APP_SECRET is required when CREDENTIAL_MODE is encrypted")
		}
	default:
		return fmt.Errorf("invalid CREDENTIAL_MODE %q. Must be one of: plaintext, encrypted", c.CredentialMode)
	}

	if c.Store.StateTTL < 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must not be negative")
	}
	if c.Shopify.ExchangeTimeout <= 0 {
		return fmt.Errorf("SHOPIFY_EXCHANGE_TIMEOUT must be positive")
	}

	if c.Shopify.APIKey == "" || c.Shopify.APISecret == "" {
		if c.IsProd() {
			return fmt.Errorf("SHOPIFY_API_KEY and SHOPIFY_API_SECRET are required in production")
		}
		if warn != nil {
			warn(ErrMissingShopifyCredentials)
		}
	}
	return nil
}

// WebhookSigningSecret is the key webhook deliveries are verified with.
func (s ShopifyConfig) WebhookSigningSecret() string {
	if s.WebhookSecret != "" {
		return s.WebhookSecret
	}
	return s.APISecret
}

func validatePort(addr string) error {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return fmt.Errorf("invalid HTTP_ADDR %q", addr)
	}
	port := addr[i+1:]
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid PORT %q. Must be a positive integer", port)
	}
	return nil
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
