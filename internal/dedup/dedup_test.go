package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestDedup(t *testing.T, ttl time.Duration) (*Deduplicator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ttl), mr
}

func TestAlreadySentNewKey(t *testing.T) {
	d, mr := setupTestDedup(t, 0)
	defer mr.Close()

	if d.AlreadySent(context.Background(), Key("tvl_drop")) {
		t.Error("AlreadySent should return false for new key")
	}
}

func TestRecordAndAlreadySent(t *testing.T) {
	d, mr := setupTestDedup(t, 0)
	defer mr.Close()

	ctx := context.Background()
	d.Record(ctx, Key("tvl_drop"))

	if !d.AlreadySent(ctx, Key("tvl_drop")) {
		t.Error("AlreadySent should return true after Record")
	}
}

func TestRecordExpires(t *testing.T) {
	d, mr := setupTestDedup(t, time.Hour)
	defer mr.Close()

	ctx := context.Background()
	d.Record(ctx, Key("whale_churn"))
	mr.FastForward(2 * time.Hour)

	if d.AlreadySent(ctx, Key("whale_churn")) {
		t.Error("AlreadySent should return false once the ttl elapsed")
	}
}

func TestClear(t *testing.T) {
	d, mr := setupTestDedup(t, 0)
	defer mr.Close()

	ctx := context.Background()
	d.Record(ctx, Key("tvl_drop"))

	if !d.AlreadySent(ctx, Key("tvl_drop")) {
		t.Fatal("should be sent after Record")
	}

	d.Clear(ctx, Key("tvl_drop"))
	if d.AlreadySent(ctx, Key("tvl_drop")) {
		t.Error("AlreadySent should return false after Clear")
	}
}

func TestAlreadySentFailClosed(t *testing.T) {
	d, mr := setupTestDedup(t, 0)

	// Stop Redis to simulate failure
	mr.Close()

	if !d.AlreadySent(context.Background(), "any:key") {
		t.Error("AlreadySent should return true (fail-closed) when Redis is down")
	}
}
