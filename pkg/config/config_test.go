package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "RPC_URL", "CHAIN_ID", "RELAYER_PRIVATE_KEY",
		"FACTORY_ADDRESS", "MIN_SIGNATURES_THRESHOLD", "MAX_PROPOSAL_AGE_HOURS",
		"RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_MAX_REQUESTS", "ALLOWED_ORIGINS",
		"APP_ENV", "STALE_MARKET_AFTER",
	} {
		_ = os.Unsetenv(key)
	}
}

func TestLoadRequiresCoreSettings(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL/RPC_URL/RELAYER_PRIVATE_KEY are unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/relayer")
	os.Setenv("RPC_URL", "https://rpc.example.com")
	os.Setenv("RELAYER_PRIVATE_KEY", "0xabc")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MinGlobalThreshold != 3 {
		t.Errorf("expected default MinGlobalThreshold 3, got %d", cfg.MinGlobalThreshold)
	}
	if cfg.MaxProposalAge != 24*time.Hour {
		t.Errorf("expected default MaxProposalAge 24h, got %s", cfg.MaxProposalAge)
	}
	if cfg.IsDevelopment() {
		t.Error("expected production environment by default")
	}
}

func TestLoadParsesAllowedOrigins(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/relayer")
	os.Setenv("RPC_URL", "https://rpc.example.com")
	os.Setenv("RELAYER_PRIVATE_KEY", "0xabc")
	os.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("unexpected AllowedOrigins: %v", cfg.AllowedOrigins)
	}
}
