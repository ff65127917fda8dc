package alert

import (
	"fmt"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/tier"
)

// Rule names.
const (
	RuleTVLDrop              = "tvl_drop"
	RuleDailyDepositDecrease = "daily_deposit_decrease"
	RuleWhaleChurn           = "whale_churn"
)

// Thresholds configure the built-in rules. Percentages are expressed in
// percent, so -10 means a 10% drop.
type Thresholds struct {
	TVLDropPercent       float64
	DailyDepositDecrease float64
	WhaleChurnRate       float64
}

// DefaultThresholds returns the stock alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TVLDropPercent:       -10,
		DailyDepositDecrease: -20,
		WhaleChurnRate:       5,
	}
}

// CheckFunc inspects two consecutive snapshots and returns the alert text when
// the rule fires.
type CheckFunc func(current, previous domain.MetricsSnapshot, th Thresholds) (string, bool)

// Rule is one row of the alert table.
type Rule struct {
	Name     string
	Severity domain.Severity
	Check    CheckFunc
}

// DefaultRules is the stock rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleTVLDrop, Severity: domain.SeverityHigh, Check: checkTVLDrop},
		{Name: RuleDailyDepositDecrease, Severity: domain.SeverityMedium, Check: checkDailyDeposits},
		{Name: RuleWhaleChurn, Severity: domain.SeverityMedium, Check: checkWhaleChurn},
	}
}

// Engine evaluates the rule table against consecutive snapshots. It holds no
// state between calls.
type Engine struct {
	thresholds Thresholds
	rules      []Rule
	now        func() time.Time
}

type Option func(*Engine)

// WithRules replaces the rule table.
func WithRules(rules ...Rule) Option { return func(e *Engine) { e.rules = rules } }

// WithClock overrides the evaluation timestamp source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(th Thresholds, opts ...Option) *Engine {
	e := &Engine{
		thresholds: th,
		rules:      DefaultRules(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Rules returns the names of the configured rules in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate returns one alert per firing rule. With no previous snapshot there
// is nothing to compare against and the result is empty.
func (e *Engine) Evaluate(current domain.MetricsSnapshot, previous *domain.MetricsSnapshot) []domain.AlertMessage {
	alerts := []domain.AlertMessage{}
	if previous == nil {
		return alerts
	}
	ts := e.now()
	for _, r := range e.rules {
		msg, fired := r.Check(current, *previous, e.thresholds)
		if !fired {
			continue
		}
		alerts = append(alerts, domain.AlertMessage{
			Rule:      r.Name,
			Message:   msg,
			Severity:  r.Severity,
			Timestamp: ts,
		})
	}
	return alerts
}

// PercentChange returns (current-previous)/previous*100, or 0 when previous
// is not positive.
func PercentChange(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

func checkTVLDrop(cur, prev domain.MetricsSnapshot, th Thresholds) (string, bool) {
	if prev.TVL.TotalTVL <= 0 {
		return "", false
	}
	change := PercentChange(cur.TVL.TotalTVL, prev.TVL.TotalTVL)
	if change >= th.TVLDropPercent {
		return "", false
	}
	return fmt.Sprintf("TVL dropped by %.2f%%", change), true
}

func checkDailyDeposits(cur, prev domain.MetricsSnapshot, th Thresholds) (string, bool) {
	p := prev.Segmentation.Frequency.Daily
	if p <= 0 {
		return "", false
	}
	change := PercentChange(float64(cur.Segmentation.Frequency.Daily), float64(p))
	if change >= th.DailyDepositDecrease {
		return "", false
	}
	return fmt.Sprintf("Daily depositors dropped by %.2f%%", change), true
}

func checkWhaleChurn(cur, prev domain.MetricsSnapshot, th Thresholds) (string, bool) {
	p := prev.Segmentation.Count(tier.Whale)
	if p <= 0 {
		return "", false
	}
	churn := -PercentChange(float64(cur.Segmentation.Count(tier.Whale)), float64(p))
	if churn <= th.WhaleChurnRate {
		return "", false
	}
	return fmt.Sprintf("Whale churn at %.2f%% (%d → %d wallets)", churn, p, cur.Segmentation.Count(tier.Whale)), true
}
