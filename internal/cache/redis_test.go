package cache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/store"
)

func setupTestCache(t *testing.T, inner store.SnapshotStore) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, inner, time.Minute, slog.Default()), mr
}

// countingStore records how often Latest reaches the backing store.
type countingStore struct {
	*store.Memory
	latestCalls int
	saveErr     error
}

func (c *countingStore) Latest(ctx context.Context) (*domain.MetricsSnapshot, error) {
	c.latestCalls++
	return c.Memory.Latest(ctx)
}

func (c *countingStore) Save(ctx context.Context, s domain.MetricsSnapshot) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	return c.Memory.Save(ctx, s)
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	rdb, err := Connect(context.Background(), "redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = rdb.Close()

	if _, err := Connect(context.Background(), "not a url", ""); err == nil {
		t.Error("Connect with invalid url should fail")
	}
}

func TestLatestReadThrough(t *testing.T) {
	inner := &countingStore{Memory: store.NewMemory()}
	c, mr := setupTestCache(t, inner)
	ctx := context.Background()

	_ = inner.Memory.Save(ctx, domain.MetricsSnapshot{ID: "a", Timestamp: time.Unix(100, 0).UTC()})

	first, err := c.Latest(ctx)
	if err != nil || first == nil || first.ID != "a" {
		t.Fatalf("Latest = %+v, %v", first, err)
	}
	second, err := c.Latest(ctx)
	if err != nil || second == nil || second.ID != "a" {
		t.Fatalf("Latest = %+v, %v", second, err)
	}
	if inner.latestCalls != 1 {
		t.Errorf("inner Latest calls = %d, want 1", inner.latestCalls)
	}
	if !mr.Exists(latestKey) {
		t.Error("cache key should be set after read-through")
	}
}

func TestSavePublishes(t *testing.T) {
	inner := &countingStore{Memory: store.NewMemory()}
	c, mr := setupTestCache(t, inner)
	ctx := context.Background()

	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "a", Timestamp: time.Unix(100, 0).UTC()})
	if got, _ := c.Latest(ctx); got.ID != "a" {
		t.Fatalf("Latest.ID = %q, want a", got.ID)
	}

	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "b", Timestamp: time.Unix(200, 0).UTC()})
	if !mr.Exists(latestKey) {
		t.Error("Save should publish the new snapshot")
	}
	if got, _ := c.Latest(ctx); got.ID != "b" {
		t.Errorf("Latest.ID = %q, want b", got.ID)
	}
	if inner.latestCalls != 0 {
		t.Errorf("inner Latest calls = %d, want 0", inner.latestCalls)
	}
	if ttl := mr.TTL(latestKey); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}

func TestSaveOutOfOrderKeepsNewest(t *testing.T) {
	inner := store.NewMemory()
	c, _ := setupTestCache(t, inner)
	ctx := context.Background()

	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "new", Timestamp: time.Unix(200, 0).UTC()})
	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "old", Timestamp: time.Unix(100, 0).UTC()})

	if got, _ := c.Latest(ctx); got == nil || got.ID != "new" {
		t.Errorf("Latest = %+v, want new", got)
	}
}

func TestSaveEqualTimestampLaterWriteWins(t *testing.T) {
	c, _ := setupTestCache(t, store.NewMemory())
	ctx := context.Background()
	ts := time.Unix(100, 0).UTC()

	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "first", Timestamp: ts})
	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "second", Timestamp: ts})

	if got, _ := c.Latest(ctx); got == nil || got.ID != "second" {
		t.Errorf("Latest = %+v, want second", got)
	}
}

// pausingStore holds Latest after reading the inner store until released.
type pausingStore struct {
	*store.Memory
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) Latest(ctx context.Context) (*domain.MetricsSnapshot, error) {
	snap, err := p.Memory.Latest(ctx)
	close(p.read)
	<-p.release
	return snap, err
}

func TestSlowFillDoesNotOverwriteNewerSave(t *testing.T) {
	inner := &pausingStore{Memory: store.NewMemory(), read: make(chan struct{}), release: make(chan struct{})}
	c, _ := setupTestCache(t, inner)
	ctx := context.Background()

	_ = inner.Memory.Save(ctx, domain.MetricsSnapshot{ID: "old", Timestamp: time.Unix(100, 0).UTC()})

	done := make(chan *domain.MetricsSnapshot)
	go func() {
		snap, _ := c.Latest(ctx)
		done <- snap
	}()

	<-inner.read
	if err := c.Save(ctx, domain.MetricsSnapshot{ID: "new", Timestamp: time.Unix(200, 0).UTC()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	close(inner.release)
	if stale := <-done; stale == nil || stale.ID != "old" {
		t.Fatalf("in-flight Latest = %+v, want old", stale)
	}

	got, err := c.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil || got.ID != "new" {
		t.Errorf("Latest = %+v, want new after the slow fill finished", got)
	}
}

func TestSaveFailureKeepsCache(t *testing.T) {
	inner := &countingStore{Memory: store.NewMemory()}
	c, mr := setupTestCache(t, inner)
	ctx := context.Background()

	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "a", Timestamp: time.Unix(100, 0).UTC()})
	_, _ = c.Latest(ctx)

	inner.saveErr = errors.New("db down")
	if err := c.Save(ctx, domain.MetricsSnapshot{ID: "b"}); err == nil {
		t.Fatal("Save should surface inner error")
	}
	if !mr.Exists(latestKey) {
		t.Error("failed Save must not invalidate committed cache entry")
	}
}

func TestLatestRedisDown(t *testing.T) {
	inner := &countingStore{Memory: store.NewMemory()}
	c, mr := setupTestCache(t, inner)
	ctx := context.Background()
	_ = inner.Memory.Save(ctx, domain.MetricsSnapshot{ID: "a"})

	mr.Close()

	got, err := c.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil || got.ID != "a" {
		t.Errorf("Latest = %+v, want inner snapshot", got)
	}
}

func TestHistoryDelegates(t *testing.T) {
	inner := store.NewMemory()
	c, _ := setupTestCache(t, inner)
	ctx := context.Background()
	_ = c.Save(ctx, domain.MetricsSnapshot{ID: "a", Timestamp: time.Unix(1, 0)})

	hist, err := c.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("len(History) = %d, want 1", len(hist))
	}
}
