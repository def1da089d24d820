// Package config loads the Relayer's configuration from environment
// variables, per spec.md §6. Unlike the teacher's YAML-backed node config,
// the Relayer has no config file: every setting is an environment variable,
// loaded once at startup into an immutable Config value (spec.md §9 — "no
// hot reload is required").
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sidebet/relayer/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v1.0.0"

// Config is the unified, immutable configuration for a Relayer process.
type Config struct {
	Port string

	DatabaseURL string

	RPCURL            string
	ChainID           *big.Int
	RelayerPrivateKey string
	FactoryAddress    string

	MinGlobalThreshold  int
	MaxProposalAge      time.Duration
	StaleMarketAfter    time.Duration
	SyncLogRetention    time.Duration
	MaxConcurrentMarket int

	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	WriteRateLimitPerMin int

	AllowedOrigins []string

	Environment string

	ChainReadTimeout      time.Duration
	ChainFinalizeTimeout  time.Duration
	ShutdownGracePeriod   time.Duration
	MarketSyncInterval    time.Duration
	DisputeWindowInterval time.Duration
	FinalizationInterval  time.Duration
	StaleProposalInterval time.Duration
	LogCleanupInterval    time.Duration
}

// IsDevelopment reports whether the dev-only endpoints (spec.md §6's
// DELETE /api/attestations/:market) are permitted.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Load reads a local .env file (if present) and then binds every
// environment variable named in spec.md §6, applying the documented
// defaults. It never errors on a missing .env file — that is the normal
// case outside local development, matching the teacher's own tolerant
// config.Load shape.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "RPC_URL", "CHAIN_ID", "RELAYER_PRIVATE_KEY",
		"FACTORY_ADDRESS", "MIN_SIGNATURES_THRESHOLD", "MAX_PROPOSAL_AGE_HOURS",
		"RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_MAX_REQUESTS", "ALLOWED_ORIGINS",
		"APP_ENV", "STALE_MARKET_AFTER", "SYNC_LOG_RETENTION_DAYS",
		"MAX_CONCURRENT_MARKET_OPS", "WRITE_RATE_LIMIT_PER_MIN",
	} {
		_ = viper.BindEnv(key)
	}

	cfg := &Config{
		Port:        utils.EnvOrDefault("PORT", "8080"),
		DatabaseURL: utils.EnvOrDefault("DATABASE_URL", ""),

		RPCURL:            utils.EnvOrDefault("RPC_URL", ""),
		ChainID:           utils.EnvOrDefaultBigInt("CHAIN_ID", big.NewInt(1)),
		RelayerPrivateKey: utils.EnvOrDefault("RELAYER_PRIVATE_KEY", ""),
		FactoryAddress:    utils.EnvOrDefault("FACTORY_ADDRESS", ""),

		MinGlobalThreshold:  utils.EnvOrDefaultInt("MIN_SIGNATURES_THRESHOLD", 3),
		MaxProposalAge:      time.Duration(utils.EnvOrDefaultInt("MAX_PROPOSAL_AGE_HOURS", 24)) * time.Hour,
		StaleMarketAfter:    utils.EnvOrDefaultDuration("STALE_MARKET_AFTER", 5*time.Minute),
		SyncLogRetention:    time.Duration(utils.EnvOrDefaultInt("SYNC_LOG_RETENTION_DAYS", 30)) * 24 * time.Hour,
		MaxConcurrentMarket: utils.EnvOrDefaultInt("MAX_CONCURRENT_MARKET_OPS", 8),

		RateLimitWindow:      time.Duration(utils.EnvOrDefaultInt("RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,
		RateLimitMaxRequests: utils.EnvOrDefaultInt("RATE_LIMIT_MAX_REQUESTS", 100),
		WriteRateLimitPerMin: utils.EnvOrDefaultInt("WRITE_RATE_LIMIT_PER_MIN", 10),

		Environment: utils.EnvOrDefault("APP_ENV", "production"),

		ChainReadTimeout:      30 * time.Second,
		ChainFinalizeTimeout:  60 * time.Second,
		ShutdownGracePeriod:   10 * time.Second,
		MarketSyncInterval:    5 * time.Minute,
		DisputeWindowInterval: 2 * time.Minute,
		FinalizationInterval:  time.Minute,
		StaleProposalInterval: time.Hour,
		LogCleanupInterval:    24 * time.Hour,
	}

	if origins := utils.EnvOrDefault("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("config: RPC_URL is required")
	}
	if cfg.RelayerPrivateKey == "" {
		return nil, fmt.Errorf("config: RELAYER_PRIVATE_KEY is required")
	}

	return cfg, nil
}
