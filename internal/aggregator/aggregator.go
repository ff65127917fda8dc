package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/deposit-insights/internal/alert"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/metrics"
	"github.com/web3-frozen/deposit-insights/internal/store"
	"github.com/web3-frozen/deposit-insights/internal/tier"
)

const (
	defaultPersistTimeout = 10 * time.Second
	notifyTimeout         = 30 * time.Second
)

// ErrAggregationFailed means a required dataset could not be obtained at all.
var ErrAggregationFailed = errors.New("aggregation failed")

// Gateway supplies the raw datasets of one cycle.
type Gateway interface {
	FetchTotalDeposits(ctx context.Context) (domain.TVLSnapshot, error)
	FetchUserDepositProfiles(ctx context.Context) ([]domain.DepositRecord, error)
	FetchTokenHolders(ctx context.Context) ([]domain.TokenHolder, error)
	FetchPlatformUsers(ctx context.Context) ([]domain.PlatformUser, error)
}

// Notifier delivers the alerts of a cycle.
type Notifier interface {
	Dispatch(ctx context.Context, alerts []domain.AlertMessage, rules []string)
}

// Aggregator runs read-aggregate-write cycles. Each cycle keeps its state
// local; the snapshot store is the only shared resource, so overlapping
// cycles are safe.
type Aggregator struct {
	gw             Gateway
	store          store.SnapshotStore
	alerts         *alert.Engine
	notifier       Notifier
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
	persistTimeout time.Duration
}

type Option func(*Aggregator)

func WithNotifier(n Notifier) Option { return func(a *Aggregator) { a.notifier = n } }

func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

func WithPersistTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.persistTimeout = d
		}
	}
}

func New(gw Gateway, st store.SnapshotStore, engine *alert.Engine, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		gw:             gw,
		store:          st,
		alerts:         engine,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
		persistTimeout: defaultPersistTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Result is the outcome of one cycle. Metrics and Alerts are final when
// RunCycle returns; Persistence reports the snapshot write separately.
type Result struct {
	Metrics     domain.MetricsSnapshot `json:"metrics"`
	Alerts      []domain.AlertMessage  `json:"alerts"`
	Persistence *Persistence           `json:"-"`
}

// Persistence tracks the asynchronous snapshot write of a cycle.
type Persistence struct {
	done chan struct{}
	err  error
}

// Done is closed once the write finished.
func (p *Persistence) Done() <-chan struct{} { return p.done }

// Persistence states reported by Status.
const (
	PersistPending   = "pending"
	PersistCommitted = "committed"
	PersistFailed    = "failed"
)

// Status reports the write state without blocking.
func (p *Persistence) Status() string {
	select {
	case <-p.done:
		if p.err != nil {
			return PersistFailed
		}
		return PersistCommitted
	default:
		return PersistPending
	}
}

// Wait blocks until the write finished or ctx ends.
func (p *Persistence) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle fetches all datasets concurrently, computes the snapshot, evaluates
// alerts against the last committed snapshot and starts persisting the new one.
func (a *Aggregator) RunCycle(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	var (
		tvl     domain.TVLSnapshot
		records []domain.DepositRecord
		holders []domain.TokenHolder
		users   []domain.PlatformUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { tvl, err = a.gw.FetchTotalDeposits(gctx); return })
	g.Go(func() (err error) { records, err = a.gw.FetchUserDepositProfiles(gctx); return })
	g.Go(func() (err error) { holders, err = a.gw.FetchTokenHolders(gctx); return })
	g.Go(func() (err error) { users, err = a.gw.FetchPlatformUsers(gctx); return })
	if err := g.Wait(); err != nil {
		metrics.CycleTotal.WithLabelValues("failed").Inc()
		a.logger.Error("aggregation cycle failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	snap := Build(a.now(), tvl, a.profiles(records), holders, users)
	snap.ID = a.newID()

	prev, err := a.store.Latest(ctx)
	if err != nil {
		a.logger.Warn("read previous snapshot failed, skipping alert comparison", "error", err)
		prev = nil
	}
	alerts := a.alerts.Evaluate(snap, prev)
	for _, al := range alerts {
		metrics.AlertsRaisedTotal.WithLabelValues(al.Rule, string(al.Severity)).Inc()
		a.logger.Warn("business alert", "rule", al.Rule, "severity", al.Severity, "message", al.Message)
	}

	res := &Result{
		Metrics:     snap,
		Alerts:      alerts,
		Persistence: a.persist(ctx, snap),
	}
	if a.notifier != nil {
		go a.notify(ctx, alerts)
	}

	recordGauges(snap)
	metrics.CycleTotal.WithLabelValues("ok").Inc()
	a.logger.Info("aggregation cycle",
		"id", snap.ID,
		"tvl", snap.TVL.TotalTVL,
		"depositors", snap.ActiveDepositors,
		"conversion_rate", snap.Conversion.ConversionRate,
		"alerts", len(alerts),
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// profiles re-derives every tier from the wallet value.
func (a *Aggregator) profiles(records []domain.DepositRecord) []domain.WalletDepositProfile {
	out := make([]domain.WalletDepositProfile, 0, len(records))
	for _, r := range records {
		p, err := domain.NewWalletDepositProfile(r)
		if err != nil {
			a.logger.Warn("skipping invalid deposit profile", "address", r.Address, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (a *Aggregator) persist(ctx context.Context, snap domain.MetricsSnapshot) *Persistence {
	p := &Persistence{done: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.persistTimeout)
	go func() {
		defer close(p.done)
		defer cancel()
		if err := a.store.Save(ctx, snap); err != nil {
			p.err = fmt.Errorf("persist snapshot %s: %w", snap.ID, err)
			metrics.PersistFailuresTotal.Inc()
			a.logger.Error("persist snapshot failed", "id", snap.ID, "error", err)
		}
	}()
	return p
}

func (a *Aggregator) notify(ctx context.Context, alerts []domain.AlertMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	a.notifier.Dispatch(ctx, alerts, a.alerts.Rules())
}

func recordGauges(snap domain.MetricsSnapshot) {
	metrics.TVL.WithLabelValues("total").Set(snap.TVL.TotalTVL)
	for _, as := range snap.TVL.Assets {
		metrics.TVL.WithLabelValues(as.Name).Set(as.Value)
	}
	for _, t := range tier.All {
		metrics.UsersByTier.WithLabelValues(string(t)).Set(float64(snap.Segmentation.Count(t)))
	}
	f := snap.Segmentation.Frequency
	metrics.UsersByFrequency.WithLabelValues("daily").Set(float64(f.Daily))
	metrics.UsersByFrequency.WithLabelValues("weekly").Set(float64(f.Weekly))
	metrics.UsersByFrequency.WithLabelValues("monthly").Set(float64(f.Monthly))
	metrics.UsersByFrequency.WithLabelValues("inactive").Set(float64(f.Inactive))
	metrics.ConversionRate.Set(snap.Conversion.ConversionRate)
}
