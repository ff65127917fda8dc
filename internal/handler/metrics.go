package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/web3-frozen/deposit-insights/internal/aggregator"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/metrics"
	"github.com/web3-frozen/deposit-insights/internal/report"
	"github.com/web3-frozen/deposit-insights/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	reportWindow        = 288
)

// Refresher runs one aggregation cycle.
type Refresher interface {
	RunCycle(ctx context.Context) (*aggregator.Result, error)
}

type refreshResponse struct {
	Metrics     domain.MetricsSnapshot `json:"metrics"`
	Alerts      []domain.AlertMessage  `json:"alerts"`
	Persistence string                 `json:"persistence"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// LatestMetrics serves the newest committed snapshot.
func LatestMetrics(st store.SnapshotStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := st.Latest(r.Context())
		if err != nil {
			logger.Error("load latest snapshot failed", "error", err)
			http.Error(w, `{"error":"failed to load metrics"}`, http.StatusInternalServerError)
			return
		}
		if snap == nil {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		metrics.SnapshotAge.Set(time.Since(snap.Timestamp).Seconds())
		writeJSON(w, http.StatusOK, snap)
	}
}

// Refresh runs a cycle on demand. limiter caps how often callers can trigger
// upstream fetches; settle is how long to wait for the snapshot write before
// answering with its status.
func Refresh(agg Refresher, limiter *rate.Limiter, settle time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow() {
			w.Header().Set("Retry-After", "10")
			http.Error(w, `{"error":"refresh rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		res, err := agg.RunCycle(r.Context())
		if err != nil {
			if errors.Is(err, aggregator.ErrAggregationFailed) {
				http.Error(w, `{"error":"data sources unavailable"}`, http.StatusBadGateway)
				return
			}
			logger.Error("refresh failed", "error", err)
			http.Error(w, `{"error":"refresh failed"}`, http.StatusInternalServerError)
			return
		}

		if settle > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), settle)
			_ = res.Persistence.Wait(ctx)
			cancel()
		}

		writeJSON(w, http.StatusOK, refreshResponse{
			Metrics:     res.Metrics,
			Alerts:      res.Alerts,
			Persistence: res.Persistence.Status(),
		})
	}
}

// History serves past snapshots newest first.
func History(h store.HistoryStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= maxHistoryLimit {
				limit = l
			}
		}

		snaps, err := h.History(r.Context(), limit)
		if err != nil {
			logger.Error("load history failed", "error", err)
			http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
			return
		}
		if snaps == nil {
			snaps = []domain.MetricsSnapshot{}
		}
		writeJSON(w, http.StatusOK, snaps)
	}
}

// Report serves the business report over the recent history window.
func Report(h store.HistoryStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps, err := h.History(r.Context(), reportWindow)
		if err != nil {
			logger.Error("load history failed", "error", err)
			http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
			return
		}
		rep, err := report.Build(snaps, time.Now())
		if errors.Is(err, report.ErrNoData) {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			logger.Error("build report failed", "error", err)
			http.Error(w, `{"error":"failed to build report"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
