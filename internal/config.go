package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/tollgate/internal/session"
	"github.com/joho/godotenv"
)

// MinJWTSecretLength is the shortest JWT_SECRET accepted at startup.
const MinJWTSecretLength = 32

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Session tokens
	JWTSecret         string
	JWTIssuer         string
	SessionCookieName string
	DevTokenEndpoint  bool          // expose POST /auth/dev-token
	DevTokenTTL       time.Duration // lifetime of development tokens

	// Catalog and policy files. Embedded defaults are used when empty.
	PlanCatalogFile string
	PathPolicyFile  string
	PriceTierMap    map[string]string // billing price id -> tier

	// Storage
	StorageTimeout time.Duration
	UsageBackend   string // "postgres" or "redis"
	RedisURL       string
	RedisPrefix    string

	// Metering
	DefaultUsageLimit int64
	TokenCharsPerUnit int

	// Gate redirects
	LoginPath   string
	UpgradePath string

	// Application behind the gate. Empty serves access summaries instead.
	UpstreamURL string

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Admin access control
	AdminEmails []string // Emails treated as administrators regardless of token role

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		JWTIssuer:         getEnv("JWT_ISSUER", ""),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", session.CookieName),
		DevTokenEndpoint:  getEnvBool("DEV_TOKEN_ENDPOINT", false),
		DevTokenTTL:       getEnvDuration("DEV_TOKEN_TTL", 24*time.Hour),

		PlanCatalogFile: getEnv("PLAN_CATALOG_FILE", ""),
		PathPolicyFile:  getEnv("PATH_POLICY_FILE", ""),

		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 2*time.Second),
		UsageBackend:   getEnv("USAGE_BACKEND", "postgres"),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisPrefix:    getEnv("REDIS_PREFIX", ""),

		DefaultUsageLimit: getEnvInt64("DEFAULT_USAGE_LIMIT", 2000),
		TokenCharsPerUnit: getEnvInt("TOKEN_CHARS_PER_UNIT", 4),

		LoginPath:   getEnv("LOGIN_PATH", "/login"),
		UpgradePath: getEnv("UPGRADE_PATH", "/settings/billing"),
		UpstreamURL: getEnv("UPSTREAM_URL", ""),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	adminEmailsStr := getEnv("ADMIN_EMAILS", "")
	if adminEmailsStr != "" {
		emails := strings.Split(adminEmailsStr, ",")
		for _, email := range emails {
			trimmed := strings.TrimSpace(strings.ToLower(email))
			if trimmed != "" {
				cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
			}
		}
	}

	priceMap, err := parsePriceTierMap(getEnv("PRICE_TIER_MAP", ""))
	if err != nil {
		return nil, err
	}
	cfg.PriceTierMap = priceMap

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(cfg.JWTSecret))
	}

	// Validate usage backend
	switch cfg.UsageBackend {
	case "postgres":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when USAGE_BACKEND is 'redis'")
		}
	default:
		return nil, fmt.Errorf("USAGE_BACKEND must be either 'postgres' or 'redis', got: %s", cfg.UsageBackend)
	}

	if cfg.StorageTimeout <= 0 {
		return nil, fmt.Errorf("STORAGE_TIMEOUT must be positive, got: %s", cfg.StorageTimeout)
	}
	if cfg.DefaultUsageLimit < 0 {
		return nil, fmt.Errorf("DEFAULT_USAGE_LIMIT must not be negative, got: %d", cfg.DefaultUsageLimit)
	}
	if cfg.TokenCharsPerUnit <= 0 {
		return nil, fmt.Errorf("TOKEN_CHARS_PER_UNIT must be positive, got: %d", cfg.TokenCharsPerUnit)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

// IsSecure reports whether cookies should carry the Secure attribute.
func (c *Config) IsSecure() bool {
	return c.Env != "development"
}

// parsePriceTierMap parses "price_a=starter,price_b=pro".
func parsePriceTierMap(s string) (map[string]string, error) {
	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		price, tier, ok := strings.Cut(pair, "=")
		price, tier = strings.TrimSpace(price), strings.TrimSpace(tier)
		if !ok || price == "" || tier == "" {
			return nil, fmt.Errorf("PRICE_TIER_MAP entry %q must look like price_id=tier", pair)
		}
		m[price] = tier
	}
	return m, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
