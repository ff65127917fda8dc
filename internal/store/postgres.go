package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/web3-frozen/deposit-insights/internal/domain"
)

// Postgres is the append-only snapshot store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Save appends a snapshot. Rows are never updated.
func (s *Postgres) Save(ctx context.Context, snap domain.MetricsSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO metrics_snapshots (id, taken_at, total_tvl, active_depositors, conversion_rate, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.Timestamp, snap.TVL.TotalTVL, snap.ActiveDepositors, snap.Conversion.ConversionRate, payload)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot by timestamp, or nil when none exist.
func (s *Postgres) Latest(ctx context.Context) (*domain.MetricsSnapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM metrics_snapshots
		ORDER BY taken_at DESC, seq DESC
		LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return decode(payload)
}

// History returns up to limit snapshots, newest first.
func (s *Postgres) History(ctx context.Context, limit int) ([]domain.MetricsSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM metrics_snapshots
		ORDER BY taken_at DESC, seq DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.MetricsSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		snap, err := decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func decode(payload []byte) (*domain.MetricsSnapshot, error) {
	var snap domain.MetricsSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
