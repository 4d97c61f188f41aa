package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "warden:perm:user:"

// CacheConfig controls snapshot caching behaviour.
type CacheConfig struct {
	TTL     time.Duration
	Enabled bool
}

// Cache stores effective-permission snapshots in Redis with a TTL. A nil
// client or disabled config degrades every operation to a no-op miss so the
// decision path keeps working without Redis.
type Cache struct {
	client *redis.Client
	cfg    CacheConfig
}

// NewCache instantiates the snapshot cache.
func NewCache(client *redis.Client, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Cache{client: client, cfg: cfg}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.cfg.Enabled
}

func userKey(userID int64) string {
	return fmt.Sprintf("%s%d", snapshotKeyPrefix, userID)
}

// Get returns the cached snapshot, or (nil, nil) on miss. Redis errors are
// returned so the caller can log them, but a caller treating any error as a
// miss preserves decision availability.
func (c *Cache) Get(ctx context.Context, userID int64) (*Snapshot, error) {
	if !c.enabled() {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Set stores the snapshot with the configured TTL.
func (c *Cache) Set(ctx context.Context, snap *Snapshot) error {
	if !c.enabled() || snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(snap.UserID), payload, c.cfg.TTL).Err()
}

// Delete removes one user's snapshot. Deleting an absent key is a no-op,
// which makes invalidation idempotent.
func (c *Cache) Delete(ctx context.Context, userID int64) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, userKey(userID)).Err()
}

// DeleteMany removes snapshots for a set of users in one round trip.
func (c *Cache) DeleteMany(ctx context.Context, userIDs []int64) error {
	if !c.enabled() || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeleteAll flushes every cached snapshot.
func (c *Cache) DeleteAll(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	iter := c.client.Scan(ctx, 0, snapshotKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
