package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/chain"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/metrics"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultCbBTCPrice = 60_000

	sourceDeposits      = "deposits"
	sourceProfiles      = "profiles"
	sourceTokenHolders  = "token_holders"
	sourcePlatformUsers = "platform_users"
)

// ErrSourceUnavailable is returned only in strict mode, when a live source
// fails and no fallback is served.
var ErrSourceUnavailable = errors.New("source unavailable")

var errNotConfigured = errors.New("endpoint not configured")

// ChainReader reads per-asset vault deposits.
type ChainReader interface {
	AssetDeposits(ctx context.Context) (chain.AssetAmounts, error)
}

// Endpoints are the list providers the gateway reads from. An empty URL means
// the source is not configured and its fallback is always served.
type Endpoints struct {
	Profiles      string
	TokenHolders  string
	PlatformUsers string
	Price         string
}

// Gateway normalizes chain and list-endpoint results into typed records.
// Unless built WithoutFallback, a failing source never produces an error:
// the deterministic fallback dataset is served instead.
type Gateway struct {
	chain      ChainReader
	endpoints  Endpoints
	client     *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	cbBTCPrice float64
	strict     bool
	now        func() time.Time
}

type Option func(*Gateway)

// WithHTTPClient overrides the HTTP client used for list endpoints.
func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.client = c } }

// WithTimeout bounds each individual fetch.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCbBTCPrice sets the USD price used when the price endpoint is unavailable.
func WithCbBTCPrice(p float64) Option {
	return func(g *Gateway) {
		if p > 0 {
			g.cbBTCPrice = p
		}
	}
}

// WithoutFallback makes source failures surface as ErrSourceUnavailable.
func WithoutFallback() Option { return func(g *Gateway) { g.strict = true } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// New creates a Gateway. reader may be nil when no RPC endpoint is configured.
func New(reader ChainReader, endpoints Endpoints, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		chain:      reader,
		endpoints:  endpoints,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		timeout:    defaultTimeout,
		cbBTCPrice: defaultCbBTCPrice,
		now:        time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// FetchTotalDeposits reads vault deposits on-chain and values them in USD.
// TotalTVL is the sum of the asset values.
func (g *Gateway) FetchTotalDeposits(ctx context.Context) (domain.TVLSnapshot, error) {
	return fetch(ctx, g, sourceDeposits, g.liveDeposits, g.fallbackDeposits)
}

// FetchUserDepositProfiles returns validated per-wallet deposit records.
func (g *Gateway) FetchUserDepositProfiles(ctx context.Context) ([]domain.DepositRecord, error) {
	return fetch(ctx, g, sourceProfiles, g.liveProfiles, fallbackProfiles)
}

// FetchTokenHolders returns platform token holders with normalized addresses.
func (g *Gateway) FetchTokenHolders(ctx context.Context) ([]domain.TokenHolder, error) {
	return fetch(ctx, g, sourceTokenHolders, g.liveTokenHolders, fallbackTokenHolders)
}

// FetchPlatformUsers returns platform users with normalized addresses.
func (g *Gateway) FetchPlatformUsers(ctx context.Context) ([]domain.PlatformUser, error) {
	return fetch(ctx, g, sourcePlatformUsers, g.livePlatformUsers, g.fallbackPlatformUsers)
}

func fetch[T any](ctx context.Context, g *Gateway, source string, live func(context.Context) (T, error), fallback func() T) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	v, err := live(ctx)
	metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.FetchTotal.WithLabelValues(source, "live").Inc()
		metrics.FetchLastLive.WithLabelValues(source).SetToCurrentTime()
		return v, nil
	}

	if g.strict {
		metrics.FetchTotal.WithLabelValues(source, "failed").Inc()
		var zero T
		return zero, fmt.Errorf("%s: %w: %w", source, ErrSourceUnavailable, err)
	}

	metrics.FetchTotal.WithLabelValues(source, "fallback").Inc()
	g.logger.Warn("source unavailable, serving fallback", "source", source, "error", err)
	return fallback(), nil
}

func (g *Gateway) liveDeposits(ctx context.Context) (domain.TVLSnapshot, error) {
	if g.chain == nil {
		return domain.TVLSnapshot{}, errNotConfigured
	}
	amounts, err := g.chain.AssetDeposits(ctx)
	if err != nil {
		return domain.TVLSnapshot{}, err
	}
	if amounts.USDC.IsNegative() || amounts.CbBTC.IsNegative() {
		return domain.TVLSnapshot{}, fmt.Errorf("negative deposit total")
	}

	price := g.cbBTCUSD(ctx)
	snap := domain.TVLSnapshot{
		Assets: []domain.AssetBreakdown{
			{Name: domain.AssetUSDC, Value: amounts.USDC.InexactFloat64()},
			{Name: domain.AssetCbBTC, Value: amounts.CbBTC.InexactFloat64() * price},
		},
		Timestamp: g.now(),
	}
	snap.Recompute()
	return snap, nil
}

// cbBTCUSD returns the live cbBTC price, or the configured price on failure.
func (g *Gateway) cbBTCUSD(ctx context.Context) float64 {
	if g.endpoints.Price == "" {
		return g.cbBTCPrice
	}
	p, err := getPrice(ctx, g.client, g.endpoints.Price)
	if err != nil {
		g.logger.Warn("price feed unavailable, using configured price", "error", err, "price", g.cbBTCPrice)
		return g.cbBTCPrice
	}
	return p
}

func (g *Gateway) liveProfiles(ctx context.Context) ([]domain.DepositRecord, error) {
	rows, err := getList[profilePayload](ctx, g.client, g.endpoints.Profiles)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DepositRecord, 0, len(rows))
	for i, r := range rows {
		rec, err := r.validate()
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Gateway) liveTokenHolders(ctx context.Context) ([]domain.TokenHolder, error) {
	rows, err := getList[holderPayload](ctx, g.client, g.endpoints.TokenHolders)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TokenHolder, 0, len(rows))
	for i, r := range rows {
		h, err := r.validate()
		if err != nil {
			return nil, fmt.Errorf("holder %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func (g *Gateway) livePlatformUsers(ctx context.Context) ([]domain.PlatformUser, error) {
	rows, err := getList[userPayload](ctx, g.client, g.endpoints.PlatformUsers)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlatformUser, 0, len(rows))
	for i, r := range rows {
		u, err := r.validate()
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}
