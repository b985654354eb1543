package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// readCache is a read-through cache in front of the counter KV store.
// MetadataStore.readRecord checks it first; callers tolerate staleness
// up to one flush interval, so a short TTL is sufficient.
type readCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func newReadCache(addr string, ttl time.Duration, logger *zap.Logger) (*readCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &readCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *readCache) get(ctx context.Context, recordName string) (map[string]int64, bool) {
	data, err := c.client.Get(ctx, cacheKey(recordName)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("metadata cache get failed", zap.String("record", recordName), zap.Error(err))
		}
		return nil, false
	}

	var bins map[string]int64
	if err := json.Unmarshal([]byte(data), &bins); err != nil {
		c.logger.Warn("metadata cache decode failed", zap.String("record", recordName), zap.Error(err))
		return nil, false
	}
	return bins, true
}

func (c *readCache) set(ctx context.Context, recordName string, bins map[string]int64) {
	data, err := json.Marshal(bins)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(recordName), data, c.ttl).Err(); err != nil {
		c.logger.Warn("metadata cache set failed", zap.String("record", recordName), zap.Error(err))
	}
}

func (c *readCache) invalidate(ctx context.Context, recordName string) {
	c.client.Del(ctx, cacheKey(recordName))
}

func (c *readCache) close() error {
	return c.client.Close()
}

func cacheKey(recordName string) string {
	return "metadata:" + recordName
}
