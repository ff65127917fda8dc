// Package report summarises stored snapshots into a business report.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/web3-frozen/deposit-insights/internal/alert"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/tier"
)

// StaleAfter is the age past which the latest snapshot is flagged stale.
const StaleAfter = 5 * time.Minute

// Recommendation thresholds.
const (
	minCbBTCShare      = 40.0
	minConversionRate  = 50.0
	retentionWhaleDrop = 0.0
)

var ErrNoData = errors.New("no snapshots available")

type KeyMetrics struct {
	TotalTVL         float64 `json:"total_tvl"`
	ActiveDepositors int     `json:"active_depositors"`
	WhaleCount       int     `json:"whale_count"`
	ConversionRate   float64 `json:"token_holder_conversion_rate"`
}

// Trends are percent changes between the oldest and newest snapshot in the
// window. A zero starting value yields 0.
type Trends struct {
	TVLGrowth              float64   `json:"tvl_growth"`
	UserGrowth             float64   `json:"user_growth"`
	DepositFrequencyChange float64   `json:"deposit_frequency_change"`
	WhaleChange            float64   `json:"whale_change"`
	From                   time.Time `json:"from"`
	To                     time.Time `json:"to"`
}

type Report struct {
	GeneratedAt     time.Time  `json:"generated_at"`
	SnapshotID      string     `json:"snapshot_id"`
	SnapshotAge     string     `json:"snapshot_age"`
	Stale           bool       `json:"stale"`
	Samples         int        `json:"samples"`
	KeyMetrics      KeyMetrics `json:"key_metrics"`
	Trends          Trends     `json:"trends"`
	Recommendations []string   `json:"recommendations"`
}

// Build summarises history, which must be ordered newest first.
func Build(history []domain.MetricsSnapshot, now time.Time) (Report, error) {
	if len(history) == 0 {
		return Report{}, ErrNoData
	}
	latest, oldest := history[0], history[len(history)-1]

	r := Report{
		GeneratedAt: now,
		SnapshotID:  latest.ID,
		SnapshotAge: humanize.RelTime(latest.Timestamp, now, "old", "ahead"),
		Stale:       now.Sub(latest.Timestamp) > StaleAfter,
		Samples:     len(history),
		KeyMetrics: KeyMetrics{
			TotalTVL:         latest.TVL.TotalTVL,
			ActiveDepositors: latest.ActiveDepositors,
			WhaleCount:       latest.Segmentation.Count(tier.Whale),
			ConversionRate:   latest.Conversion.ConversionRate,
		},
		Trends: Trends{
			TVLGrowth:              alert.PercentChange(latest.TVL.TotalTVL, oldest.TVL.TotalTVL),
			UserGrowth:             alert.PercentChange(float64(latest.ActiveDepositors), float64(oldest.ActiveDepositors)),
			DepositFrequencyChange: alert.PercentChange(float64(latest.Segmentation.Frequency.Daily), float64(oldest.Segmentation.Frequency.Daily)),
			WhaleChange:            alert.PercentChange(float64(latest.Segmentation.Count(tier.Whale)), float64(oldest.Segmentation.Count(tier.Whale))),
			From:                   oldest.Timestamp,
			To:                     latest.Timestamp,
		},
	}
	r.Recommendations = recommend(latest, r.Trends)
	return r, nil
}

func recommend(s domain.MetricsSnapshot, tr Trends) []string {
	recs := []string{}

	if s.TVL.TotalTVL > 0 {
		share := s.TVL.Asset(domain.AssetCbBTC).Value / s.TVL.TotalTVL * 100
		if share < minCbBTCShare {
			recs = append(recs, fmt.Sprintf(
				"Increase incentives for cbBTC deposits to balance asset distribution (cbBTC is %.1f%% of $%s TVL)",
				share, humanize.CommafWithDigits(s.TVL.TotalTVL, 0)))
		}
	}

	c := s.Conversion
	if unconverted := c.TotalTokenHolders - c.Overlap; unconverted > 0 && c.ConversionRate < minConversionRate {
		recs = append(recs, fmt.Sprintf(
			"Target the %s token holders who haven't used the platform yet",
			humanize.Comma(int64(unconverted))))
	}

	if whales := s.Segmentation.Count(tier.Whale); whales > 0 && tr.WhaleChange <= retentionWhaleDrop {
		recs = append(recs, fmt.Sprintf(
			"Implement retention program for whale users (%d wallets holding $%s)",
			whales, humanize.CommafWithDigits(s.Segmentation.SegmentDeposits[tier.Whale], 0)))
	}

	if tr.TVLGrowth < 0 {
		recs = append(recs, fmt.Sprintf("Investigate TVL decline of %.2f%% since %s", tr.TVLGrowth, tr.From.UTC().Format(time.RFC3339)))
	}
	return recs
}
