// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage
	DatabaseURL   string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL      string // Optional, enables the redis replay store
	ReplayStore   string // "auto", "memory", "postgres", "redis"
	AutoMigrate   bool   // apply goose migrations on startup
	MigrationsDir string

	// Agent API auth
	ReplayStrict       bool          // fail closed when the replay store is unavailable
	TimestampSkew      time.Duration // accepted clock skew for x-agent-timestamp
	ReplayReapInterval time.Duration

	// Blockchain settings
	RPCURL          string
	ChainID         int64
	ServerSignerKey string // optional; presence switches proposals to submitted mode
	DemoChain       bool   // use the in-memory simulated wallet contract
	DemoHuman       string // human role holder for simulated wallets
	DemoToken       string // token allowed by the simulated wallets' policy
	PolicyCacheTTL  time.Duration
	ConfirmTimeout  time.Duration

	// HTTP surface
	PublicOrigin string // overrides forwarded-header origin detection for pay URLs
	CORSOrigins  []string
	RateLimitRPM int
	OTLPEndpoint string
	AdminSecret  string // guards the agent registry routes
}

// Defaults
const (
	DefaultRPCURL             = "http://127.0.0.1:8545"
	DefaultChainID            = 31337 // local anvil/hardhat
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultReplayStore        = "auto"
	DefaultTimestampSkew      = 300 * time.Second
	DefaultReplayReapInterval = time.Minute
	DefaultPolicyCacheTTL     = 15 * time.Second
	DefaultConfirmTimeout     = 60 * time.Second
	DefaultRateLimitRPM       = 120
	DefaultMigrationsDir      = "migrations"
)

var (
	signerKeyRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	addressRegex   = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ReplayStore:        strings.ToLower(getEnv("REPLAY_STORE", DefaultReplayStore)),
		AutoMigrate:        isTruthy(os.Getenv("AUTO_MIGRATE")),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", DefaultMigrationsDir),
		TimestampSkew:      time.Duration(getEnvInt64("TIMESTAMP_SKEW_SECONDS", int64(DefaultTimestampSkew/time.Second))) * time.Second,
		ReplayReapInterval: getEnvDuration("REPLAY_REAP_INTERVAL", DefaultReplayReapInterval),
		RPCURL:             getEnv("RPC_URL", DefaultRPCURL),
		ChainID:            getEnvInt64("CHAIN_ID", DefaultChainID),
		ServerSignerKey:    strings.TrimSpace(os.Getenv("AGENTOS_SERVER_SIGNER_PRIVATE_KEY")),
		DemoChain:          isTruthy(os.Getenv("DEMO_CHAIN")),
		DemoHuman:          strings.TrimSpace(os.Getenv("DEMO_HUMAN_ADDRESS")),
		DemoToken:          strings.TrimSpace(os.Getenv("DEMO_TOKEN_ADDRESS")),
		PolicyCacheTTL:     getEnvDuration("POLICY_CACHE_TTL", DefaultPolicyCacheTTL),
		ConfirmTimeout:     getEnvDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout),
		PublicOrigin:       strings.TrimRight(os.Getenv("PUBLIC_ORIGIN"), "/"),
		CORSOrigins:        splitList(os.Getenv("CORS_ORIGINS")),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		ReplayStrict:       replayStrict(os.Getenv("AGENTOS_REPLAY_REQUIRED")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// replayStrict applies AGENTOS_REPLAY_REQUIRED when set and fails closed
// otherwise. Lenient mode must be requested explicitly.
func replayStrict(flag string) bool {
	if strings.TrimSpace(flag) == "" {
		return true
	}
	return isTruthy(flag)
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ServerSignerKey != "" && !signerKeyRegex.MatchString(c.ServerSignerKey) {
		return fmt.Errorf("AGENTOS_SERVER_SIGNER_PRIVATE_KEY must be 0x followed by 64 hex characters")
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	if c.RPCURL == "" && !c.DemoChain {
		return fmt.Errorf("RPC_URL is required")
	}

	for key, v := range map[string]string{"DEMO_HUMAN_ADDRESS": c.DemoHuman, "DEMO_TOKEN_ADDRESS": c.DemoToken} {
		if v != "" && !addressRegex.MatchString(v) {
			return fmt.Errorf("%s must be a 0x-prefixed 20-byte hex address", key)
		}
	}

	if c.TimestampSkew <= 0 {
		return fmt.Errorf("TIMESTAMP_SKEW_SECONDS must be positive")
	}

	switch c.ReplayStore {
	case "auto", "memory", "postgres", "redis":
	default:
		return fmt.Errorf("REPLAY_STORE must be one of auto, memory, postgres, redis")
	}
	if c.ReplayStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("REPLAY_STORE=postgres requires DATABASE_URL")
	}
	if c.ReplayStore == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REPLAY_STORE=redis requires REDIS_URL")
	}

	return nil
}

// HasServerSigner reports whether a server-held signing key is configured.
func (c *Config) HasServerSigner() bool {
	return c.ServerSignerKey != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
