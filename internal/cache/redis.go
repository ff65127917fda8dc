package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/store"
)

const latestKey = "deposit_insights:snapshot:latest"

// Connect parses a redis:// URL, applies the password override and pings.
func Connect(ctx context.Context, redisURL, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// SnapshotCache is a read-through cache in front of a SnapshotStore. Writes go
// to the inner store first and are then published to the cache. The cached
// entry only ever moves forward in time, so a slow read-through fill can never
// replace a snapshot that a concurrent Save already published.
type SnapshotCache struct {
	rdb    *redis.Client
	inner  store.SnapshotStore
	ttl    time.Duration
	logger *slog.Logger
}

// setIfNewer stores payload under KEYS[1] unless the cached entry is newer.
// ARGV: stamp, payload, ttl in ms, and "1" when an equal stamp may be
// replaced (Save) or "0" when it may not (read-through fill).
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'stamp')
if cur then
	if cur > ARGV[1] then return 0 end
	if cur == ARGV[1] and ARGV[4] ~= '1' then return 0 end
end
redis.call('HSET', KEYS[1], 'stamp', ARGV[1], 'payload', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func New(rdb *redis.Client, inner store.SnapshotStore, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, inner: inner, ttl: ttl, logger: logger}
}

// stamp orders snapshots by timestamp; fixed width so Lua compares it as a string.
func stamp(snap *domain.MetricsSnapshot) string {
	ns := snap.Timestamp.UnixNano()
	if snap.Timestamp.IsZero() || ns < 0 {
		ns = 0
	}
	return fmt.Sprintf("%020d", ns)
}

func (c *SnapshotCache) publish(ctx context.Context, snap *domain.MetricsSnapshot, replaceEqual bool) {
	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("encode snapshot for cache failed", "error", err)
		return
	}
	replace := "0"
	if replaceEqual {
		replace = "1"
	}
	err = setIfNewer.Run(ctx, c.rdb, []string{latestKey}, stamp(snap), payload, c.ttl.Milliseconds(), replace).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("snapshot cache write failed", "error", err)
	}
}

func (c *SnapshotCache) Save(ctx context.Context, snap domain.MetricsSnapshot) error {
	if err := c.inner.Save(ctx, snap); err != nil {
		return err
	}
	c.publish(ctx, &snap, true)
	return nil
}

func (c *SnapshotCache) Latest(ctx context.Context) (*domain.MetricsSnapshot, error) {
	raw, err := c.rdb.HGet(ctx, latestKey, "payload").Bytes()
	switch {
	case err == nil:
		var snap domain.MetricsSnapshot
		if jerr := json.Unmarshal(raw, &snap); jerr == nil {
			return &snap, nil
		}
		c.logger.Warn("discarding undecodable cached snapshot")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("snapshot cache read failed", "error", err)
	}

	snap, err := c.inner.Latest(ctx)
	if err != nil || snap == nil {
		return snap, err
	}
	c.publish(ctx, snap, false)
	return snap, nil
}

// History delegates to the inner store when it keeps history.
func (c *SnapshotCache) History(ctx context.Context, limit int) ([]domain.MetricsSnapshot, error) {
	hs, ok := c.inner.(store.HistoryStore)
	if !ok {
		return nil, fmt.Errorf("snapshot history not supported")
	}
	return hs.History(ctx, limit)
}
