package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS metrics_snapshots (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    taken_at TIMESTAMPTZ NOT NULL,
    total_tvl DOUBLE PRECISION NOT NULL,
    active_depositors INT NOT NULL DEFAULT 0,
    conversion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS metrics_snapshots_taken_at_idx
    ON metrics_snapshots (taken_at DESC, seq DESC);
`

func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
