package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	// Unset key returns fallback
	os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "default" {
		t.Errorf("envOr unset key = %q, want %q", got, "default")
	}

	// Set key returns value
	os.Setenv("TEST_ENVOR_KEY", "custom")
	defer os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "custom" {
		t.Errorf("envOr set key = %q, want %q", got, "custom")
	}

	// Empty string returns fallback
	os.Setenv("TEST_ENVOR_KEY", "")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOr empty key = %q, want %q", got, "fallback")
	}
}

func TestLoadDefaults(t *testing.T) {
	// Clear all relevant env vars
	for _, k := range []string{
		"PORT", "DATABASE_URL", "TELEGRAM_BOT_TOKEN", "FRONTEND_ORIGIN", "REDIS_URL", "REDIS_PASSWORD",
		"INFISICAL_CLIENT_ID", "INFISICAL_CLIENT_SECRET", "CBBTC_PRICE_USD", "FETCH_TIMEOUT",
		"REFRESH_INTERVAL", "REFRESH_RATE_PER_MINUTE", "TVL_DROP_PERCENT", "DAILY_DEPOSIT_DECREASE",
		"WHALE_CHURN_RATE", "STRICT_SOURCES", "CONTRACT_ADDRESS", "PERSIST_TIMEOUT",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.FrontendOrigin != "*" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "*")
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Errorf("DatabaseURL = %q, RedisURL = %q, want empty", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.ContractAddress != "0x7300B37DfdfAb110d83290A29DfB31B1740219fE" {
		t.Errorf("ContractAddress = %q", cfg.ContractAddress)
	}
	if cfg.CbBTCPriceUSD != 60000 {
		t.Errorf("CbBTCPriceUSD = %v, want 60000", cfg.CbBTCPriceUSD)
	}
	if cfg.FetchTimeout != 5*time.Second || cfg.PersistTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, PersistTimeout = %v", cfg.FetchTimeout, cfg.PersistTimeout)
	}
	if cfg.RefreshInterval != 5*time.Minute || cfg.RefreshRatePerMinute != 6 {
		t.Errorf("RefreshInterval = %v, RefreshRatePerMinute = %d", cfg.RefreshInterval, cfg.RefreshRatePerMinute)
	}
	if cfg.TVLDropPercent != -10 || cfg.DailyDepositDecrease != -20 || cfg.WhaleChurnRate != 5 {
		t.Errorf("thresholds = %v/%v/%v", cfg.TVLDropPercent, cfg.DailyDepositDecrease, cfg.WhaleChurnRate)
	}
	if cfg.StrictSources {
		t.Error("StrictSources = true, want false")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("FRONTEND_ORIGIN", "http://localhost:3000")
	t.Setenv("TVL_DROP_PERCENT", "-5")
	t.Setenv("REFRESH_INTERVAL", "0")
	t.Setenv("STRICT_SOURCES", "true")
	t.Setenv("INFISICAL_CLIENT_ID", "")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://test")
	}
	if cfg.TelegramToken != "test-token" {
		t.Errorf("TelegramToken = %q, want %q", cfg.TelegramToken, "test-token")
	}
	if cfg.FrontendOrigin != "http://localhost:3000" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "http://localhost:3000")
	}
	if cfg.TVLDropPercent != -5 {
		t.Errorf("TVLDropPercent = %v, want -5", cfg.TVLDropPercent)
	}
	if cfg.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0 (disabled)", cfg.RefreshInterval)
	}
	if !cfg.StrictSources {
		t.Error("StrictSources = false, want true")
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 3 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"15", 15 * time.Second},
		{"soon", 3 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.val)
		if got := envDuration("TEST_DURATION", 3*time.Second); got != tt.want {
			t.Errorf("envDuration(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestEnvNumbersFallbackOnGarbage(t *testing.T) {
	t.Setenv("TEST_FLOAT", "abc")
	if got := envFloat("TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("envFloat = %v, want 1.5", got)
	}
	t.Setenv("TEST_INT", "4.2")
	if got := envInt("TEST_INT", 7); got != 7 {
		t.Errorf("envInt = %v, want 7", got)
	}
	t.Setenv("TEST_BOOL", "maybe")
	if got := envBool("TEST_BOOL", true); !got {
		t.Error("envBool = false, want fallback true")
	}
}
