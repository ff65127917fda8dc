package store

import (
	"context"
	"sort"
	"sync"

	"github.com/web3-frozen/deposit-insights/internal/domain"
)

// SnapshotStore persists metrics snapshots. Writes append; Latest returns the
// snapshot with the greatest timestamp among committed writes.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.MetricsSnapshot) error
	Latest(ctx context.Context) (*domain.MetricsSnapshot, error)
}

// HistoryStore is implemented by stores that can list past snapshots.
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]domain.MetricsSnapshot, error)
}

// Memory is an in-process SnapshotStore used when no database is configured.
// Snapshots are deep-copied on the way in and out.
type Memory struct {
	mu    sync.RWMutex
	snaps []domain.MetricsSnapshot
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, snap domain.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap.Clone())
	return nil
}

// Latest returns a copy of the newest snapshot; ties go to the later write.
func (m *Memory) Latest(_ context.Context) (*domain.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snaps) == 0 {
		return nil, nil
	}
	best := 0
	for i := 1; i < len(m.snaps); i++ {
		if !m.snaps[i].Timestamp.Before(m.snaps[best].Timestamp) {
			best = i
		}
	}
	snap := m.snaps[best].Clone()
	return &snap, nil
}

// History returns up to limit snapshots, newest first.
func (m *Memory) History(_ context.Context, limit int) ([]domain.MetricsSnapshot, error) {
	m.mu.RLock()
	out := make([]domain.MetricsSnapshot, 0, len(m.snaps))
	for i := len(m.snaps) - 1; i >= 0; i-- {
		out = append(out, m.snaps[i].Clone())
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
