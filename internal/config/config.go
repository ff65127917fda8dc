package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	FrontendOrigin string
	RedisURL       string
	RedisPassword  string

	ChainRPCEndpoint string
	ContractAddress  string
	ProfilesURL      string
	TokenHoldersURL  string
	PlatformUsersURL string
	PriceURL         string
	CbBTCPriceUSD    float64
	FetchTimeout     time.Duration
	StrictSources    bool

	PersistTimeout       time.Duration
	RefreshInterval      time.Duration
	RefreshRatePerMinute int

	TVLDropPercent       float64
	DailyDepositDecrease float64
	WhaleChurnRate       float64

	AlertWebhookURL string
	TelegramToken   string
	TelegramChatID  string
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),

		ChainRPCEndpoint: envOr("CHAIN_RPC_ENDPOINT", "https://base-mainnet.g.alchemy.com/v2/demo"),
		ContractAddress:  envOr("CONTRACT_ADDRESS", "0x7300B37DfdfAb110d83290A29DfB31B1740219fE"),
		ProfilesURL:      os.Getenv("PROFILES_URL"),
		TokenHoldersURL:  os.Getenv("TOKEN_HOLDERS_URL"),
		PlatformUsersURL: os.Getenv("PLATFORM_USERS_URL"),
		PriceURL:         os.Getenv("PRICE_URL"),
		CbBTCPriceUSD:    envFloat("CBBTC_PRICE_USD", 60000),
		FetchTimeout:     envDuration("FETCH_TIMEOUT", 5*time.Second),
		StrictSources:    envBool("STRICT_SOURCES", false),

		PersistTimeout:       envDuration("PERSIST_TIMEOUT", 10*time.Second),
		RefreshInterval:      envDuration("REFRESH_INTERVAL", 5*time.Minute),
		RefreshRatePerMinute: envInt("REFRESH_RATE_PER_MINUTE", 6),

		TVLDropPercent:       envFloat("TVL_DROP_PERCENT", -10),
		DailyDepositDecrease: envFloat("DAILY_DEPOSIT_DECREASE", -20),
		WhaleChurnRate:       envFloat("WHALE_CHURN_RATE", 5),

		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  os.Getenv("TELEGRAM_CHAT_ID"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"DATABASE_URL":       &cfg.DatabaseURL,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"ALERT_WEBHOOK_URL":  &cfg.AlertWebhookURL,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid int env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback.String())
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid bool env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}
