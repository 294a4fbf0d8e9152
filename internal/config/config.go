package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/paire/chat-billing/internal/domain/billing"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	// UseMemoryStore runs the engine against the in-memory ledger instead of
	// postgres. Used by the replicated ledger node and local development.
	UseMemoryStore bool

	// IdleSessionTTL is how long a session may sit without a message before
	// the sweeper closes it with a TIMEOUT reason.
	IdleSessionTTL time.Duration
	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration
	// SweepBatchSize caps how many sessions one sweep may close.
	SweepBatchSize int

	// APIKeyHash is the bcrypt hash admin endpoints authenticate against.
	// Empty disables admin auth entirely.
	APIKeyHash string
	// AuditSigningKey signs audit entries. Empty disables signing.
	AuditSigningKey string

	Pricing billing.Pricing
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "chat_billing")
		pass := getenv("POSTGRES_PASSWORD", "chat_billing_pass")
		db := getenv("POSTGRES_DB", "chat_billing")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	pricing := billing.DefaultPricing()
	pricing.StandardBucketWords = parseInt(os.Getenv("PRICING_BUCKET_WORDS"), pricing.StandardBucketWords)
	pricing.RoyalBucketWords = parseInt(os.Getenv("PRICING_ROYAL_BUCKET_WORDS"), pricing.RoyalBucketWords)
	pricing.BucketCostTokens = parseInt64(os.Getenv("PRICING_BUCKET_COST_TOKENS"), pricing.BucketCostTokens)
	pricing.FeeNumerator = parseInt64(os.Getenv("PRICING_FEE_NUMERATOR"), pricing.FeeNumerator)
	pricing.FeeDenominator = parseInt64(os.Getenv("PRICING_FEE_DENOMINATOR"), pricing.FeeDenominator)
	pricing.DefaultFreeMessages = parseInt(os.Getenv("PRICING_FREE_MESSAGES"), pricing.DefaultFreeMessages)
	pricing.MidBandFreeMessages = parseInt(os.Getenv("PRICING_MID_BAND_FREE_MESSAGES"), pricing.MidBandFreeMessages)
	pricing.OnboardingMinAgeDays = parseInt(os.Getenv("PRICING_ONBOARDING_MIN_AGE_DAYS"), pricing.OnboardingMinAgeDays)
	pricing.FreePoolOverrideExpr = os.Getenv("PRICING_FREE_POOL_OVERRIDE")
	if err := pricing.Validate(); err != nil {
		return nil, fmt.Errorf("pricing config: %w", err)
	}

	return &Config{
		DatabaseURL:     dsn,
		ServerAddr:      getenv("SERVER_ADDR", "0.0.0.0:8080"),
		UseMemoryStore:  parseBool(os.Getenv("USE_MEMORY_STORE"), false),
		IdleSessionTTL:  parseDuration(os.Getenv("IDLE_SESSION_TTL"), 72*time.Hour),
		SweepInterval:   parseDuration(os.Getenv("SWEEP_INTERVAL"), 5*time.Minute),
		SweepBatchSize:  parseInt(os.Getenv("SWEEP_BATCH_SIZE"), 200),
		APIKeyHash:      os.Getenv("API_KEY_HASH"),
		AuditSigningKey: os.Getenv("AUDIT_SIGNING_KEY"),
		Pricing:         pricing,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseInt64(val string, def int64) int64 {
	if val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return def
	}
	return n
}
