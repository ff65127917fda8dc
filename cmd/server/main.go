package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/web3-frozen/deposit-insights/internal/aggregator"
	"github.com/web3-frozen/deposit-insights/internal/alert"
	"github.com/web3-frozen/deposit-insights/internal/cache"
	"github.com/web3-frozen/deposit-insights/internal/chain"
	"github.com/web3-frozen/deposit-insights/internal/config"
	"github.com/web3-frozen/deposit-insights/internal/dedup"
	"github.com/web3-frozen/deposit-insights/internal/gateway"
	"github.com/web3-frozen/deposit-insights/internal/handler"
	"github.com/web3-frozen/deposit-insights/internal/middleware"
	"github.com/web3-frozen/deposit-insights/internal/notify"
	"github.com/web3-frozen/deposit-insights/internal/store"
)

const (
	cacheTTL        = 10 * time.Minute
	alertDedupTTL   = 6 * time.Hour
	refreshSettle   = 2 * time.Second
	refreshBurst    = 2
	redisRetries    = 6
	redisRetryDelay = 5 * time.Second
)

// snapshotStore is what the aggregator and the read handlers need.
type snapshotStore interface {
	store.SnapshotStore
	store.HistoryStore
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readiness []handler.Pinger

	// Snapshot store
	var snapshots snapshotStore = store.NewMemory()
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")
		snapshots = db
		readiness = append(readiness, db)
	} else {
		logger.Warn("DATABASE_URL not set, snapshots are kept in memory only")
	}

	// Redis cache and alert dedup (retry up to 30s for ExternalSecret to sync)
	var dd notify.Deduper
	if cfg.RedisURL != "" {
		var rdb *redis.Client
		var err error
		for i := 0; i < redisRetries; i++ {
			rdb, err = cache.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(redisRetryDelay)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("redis connected for snapshot cache and alert dedup")

		snapshots = cache.New(rdb, snapshots, cacheTTL, logger)
		dd = dedup.New(rdb, alertDedupTTL)
		readiness = append(readiness, handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	// On-chain reader; without it deposits come from the fallback dataset
	var reader gateway.ChainReader
	if cfg.ChainRPCEndpoint != "" {
		r, err := chain.Dial(ctx, cfg.ChainRPCEndpoint, cfg.ContractAddress)
		if err != nil {
			logger.Warn("chain reader unavailable, serving fallback deposits", "error", err)
		} else {
			defer r.Close()
			reader = r
		}
	}

	gwOpts := []gateway.Option{
		gateway.WithHTTPClient(&http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}),
		gateway.WithTimeout(cfg.FetchTimeout),
		gateway.WithCbBTCPrice(cfg.CbBTCPriceUSD),
	}
	if cfg.StrictSources {
		gwOpts = append(gwOpts, gateway.WithoutFallback())
	}
	gw := gateway.New(reader, gateway.Endpoints{
		Profiles:      cfg.ProfilesURL,
		TokenHolders:  cfg.TokenHoldersURL,
		PlatformUsers: cfg.PlatformUsersURL,
		Price:         cfg.PriceURL,
	}, logger, gwOpts...)

	engine := alert.NewEngine(alert.Thresholds{
		TVLDropPercent:       cfg.TVLDropPercent,
		DailyDepositDecrease: cfg.DailyDepositDecrease,
		WhaleChurnRate:       cfg.WhaleChurnRate,
	})
	th := engine.Thresholds()
	logger.Info("alert rules loaded",
		"rules", engine.Rules(),
		"tvl_drop_percent", th.TVLDropPercent,
		"daily_deposit_decrease", th.DailyDepositDecrease,
		"whale_churn_rate", th.WhaleChurnRate,
	)

	// Alert delivery
	var senders []notify.Sender
	if cfg.AlertWebhookURL != "" {
		senders = append(senders, notify.NewWebhook(cfg.AlertWebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
		if err != nil {
			logger.Error("invalid TELEGRAM_CHAT_ID", "error", err)
			os.Exit(1)
		}
		senders = append(senders, notify.NewTelegram(cfg.TelegramToken, chatID))
	}
	aggOpts := []aggregator.Option{aggregator.WithPersistTimeout(cfg.PersistTimeout)}
	if dispatcher := notify.NewDispatcher(logger, dd, senders...); dispatcher.Enabled() {
		aggOpts = append(aggOpts, aggregator.WithNotifier(dispatcher))
		logger.Info("alert delivery enabled", "senders", len(senders))
	}

	agg := aggregator.New(gw, snapshots, engine, logger, aggOpts...)

	// Start background goroutines
	if cfg.RefreshInterval > 0 {
		go agg.Run(ctx, cfg.RefreshInterval)
	}

	var limiter *rate.Limiter
	if cfg.RefreshRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RefreshRatePerMinute)), refreshBurst)
	}

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(readiness...))

	r.Route("/api", func(r chi.Router) {
		r.Get("/metrics", handler.LatestMetrics(snapshots, logger))
		r.Post("/metrics/refresh", handler.Refresh(agg, limiter, refreshSettle, logger))
		r.Get("/metrics/history", handler.History(snapshots, logger))
		r.Get("/report", handler.Report(snapshots, logger))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
