package notify

import (
	"context"
	"log/slog"

	"github.com/web3-frozen/deposit-insights/internal/dedup"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/metrics"
)

// Sender delivers one alert to an external channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, alert domain.AlertMessage) error
}

// Deduper remembers which rules already announced their current condition.
type Deduper interface {
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string)
	Clear(ctx context.Context, key string)
}

// Dispatcher fans alerts out to every sender, announcing each rule once per
// breach: a rule that stops firing is cleared and may alert again later.
type Dispatcher struct {
	senders []Sender
	dedup   Deduper
	logger  *slog.Logger
}

// NewDispatcher builds a dispatcher; dd may be nil to disable deduplication.
func NewDispatcher(logger *slog.Logger, dd Deduper, senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders, dedup: dd, logger: logger}
}

// Enabled reports whether any sender is configured.
func (d *Dispatcher) Enabled() bool { return len(d.senders) > 0 }

// Dispatch delivers alerts. rules lists every rule that was evaluated so
// rules that did not fire this cycle can be re-armed.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []domain.AlertMessage, rules []string) {
	fired := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		fired[a.Rule] = true
	}
	if d.dedup != nil {
		for _, r := range rules {
			if !fired[r] {
				d.dedup.Clear(ctx, dedup.Key(r))
			}
		}
	}

	for _, a := range alerts {
		key := dedup.Key(a.Rule)
		if d.dedup != nil && d.dedup.AlreadySent(ctx, key) {
			metrics.AlertsDeduplicatedTotal.WithLabelValues(a.Rule).Inc()
			continue
		}

		delivered := false
		for _, s := range d.senders {
			if err := s.Send(ctx, a); err != nil {
				metrics.AlertsFailedTotal.WithLabelValues(s.Name(), a.Rule).Inc()
				d.logger.Error("send alert failed", "sender", s.Name(), "rule", a.Rule, "error", err)
				continue
			}
			metrics.AlertsSentTotal.WithLabelValues(s.Name(), a.Rule).Inc()
			delivered = true
		}
		if delivered && d.dedup != nil {
			d.dedup.Record(ctx, key)
		}
	}
}
