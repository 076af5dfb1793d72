package partition

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sqlflowx/transformengine/internal/model"
)

// cacheTier is an optional second cache tier behind the manager's
// in-process map, grounded on the teacher's cache/redis.go RedisCache —
// sharing detection results across processes when configured.
type cacheTier interface {
	Get(ctx context.Context, table, column string) ([]model.PartitionInfo, bool)
	Set(ctx context.Context, table, column string, partitions []model.PartitionInfo)
	ClearTable(table string)
}

func (m *Manager) getCached(ctx context.Context, key cacheKey) ([]model.PartitionInfo, bool) {
	m.mu.Lock()
	if v, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return v, true
	}
	m.mu.Unlock()

	if m.tier2 == nil {
		return nil, false
	}
	if v, ok := m.tier2.Get(ctx, key.table, key.column); ok {
		m.mu.Lock()
		m.cache[key] = v
		m.mu.Unlock()
		return v, true
	}
	return nil, false
}

func (m *Manager) setCached(ctx context.Context, key cacheKey, partitions []model.PartitionInfo) {
	m.mu.Lock()
	m.cache[key] = partitions
	m.mu.Unlock()

	if m.tier2 != nil {
		m.tier2.Set(ctx, key.table, key.column, partitions)
	}
}

// RedisCacheTier is the distributed second tier backed by go-redis,
// mirroring the teacher's cache/redis.go JSON-encoded value convention.
type RedisCacheTier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheTier wraps client with a key prefix and entry TTL.
func NewRedisCacheTier(client *redis.Client, prefix string, ttl time.Duration) *RedisCacheTier {
	if prefix == "" {
		prefix = "sqlflow:partitions:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCacheTier{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCacheTier) key(table, column string) string {
	return c.prefix + table + ":" + column
}

// Get fetches and JSON-decodes partitions for (table, column); returns
// (nil, false) on miss or any decode error.
func (c *RedisCacheTier) Get(ctx context.Context, table, column string) ([]model.PartitionInfo, bool) {
	data, err := c.client.Get(ctx, c.key(table, column)).Bytes()
	if err != nil {
		return nil, false
	}
	var partitions []model.PartitionInfo
	if err := json.Unmarshal(data, &partitions); err != nil {
		return nil, false
	}
	return partitions, true
}

// Set JSON-encodes and stores partitions with the tier's TTL.
func (c *RedisCacheTier) Set(ctx context.Context, table, column string, partitions []model.PartitionInfo) {
	data, err := json.Marshal(partitions)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(table, column), data, c.ttl)
}

// ClearTable deletes every cached column entry for table by scanning keys
// under the table's prefix.
func (c *RedisCacheTier) ClearTable(table string) {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.prefix+table+":*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
