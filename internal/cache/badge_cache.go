// Package cache keeps badge counters (unread notifications, tasks awaiting
// approval) in Redis so list screens do not recount on every poll.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// minGenerationTTL keeps generation counters well past the life of any value
// written under them
const minGenerationTTL = 24 * time.Hour

// RedisClient is the subset of the go-redis client the cache uses
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Lease is handed out on a miss and names the generation the miss was seen
// at. Filling with a lease taken before an invalidation writes a key that is
// never read, so a count computed from stale data cannot be served.
type Lease struct {
	key string
}

// BadgeCache stores derived counts. A miss or a Redis failure makes callers
// fall back to the store, so the cache never decides business outcomes.
type BadgeCache interface {
	UnreadCount(ctx context.Context, userID string) (int, Lease, bool)
	PendingApprovals(ctx context.Context, familyID string) (int, Lease, bool)
	Fill(ctx context.Context, lease Lease, count int)
	InvalidateUnread(ctx context.Context, userID string)
	InvalidatePendingApprovals(ctx context.Context, familyID string)
}

// RedisBadgeCache implements BadgeCache on Redis
type RedisBadgeCache struct {
	client        RedisClient
	ttl           time.Duration
	generationTTL time.Duration
}

// NewRedisBadgeCache creates a cache whose entries expire after ttl
func NewRedisBadgeCache(client RedisClient, ttl time.Duration) *RedisBadgeCache {
	generationTTL := minGenerationTTL
	if 2*ttl > generationTTL {
		generationTTL = 2 * ttl
	}
	return &RedisBadgeCache{client: client, ttl: ttl, generationTTL: generationTTL}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func unreadKey(userID string) string {
	return "badge:unread:" + userID
}

func pendingKey(familyID string) string {
	return "badge:pending:" + familyID
}

func (c *RedisBadgeCache) UnreadCount(ctx context.Context, userID string) (int, Lease, bool) {
	return c.get(ctx, unreadKey(userID))
}

func (c *RedisBadgeCache) PendingApprovals(ctx context.Context, familyID string) (int, Lease, bool) {
	return c.get(ctx, pendingKey(familyID))
}

func (c *RedisBadgeCache) InvalidateUnread(ctx context.Context, userID string) {
	c.invalidate(ctx, unreadKey(userID))
}

func (c *RedisBadgeCache) InvalidatePendingApprovals(ctx context.Context, familyID string) {
	c.invalidate(ctx, pendingKey(familyID))
}

// Fill stores count under the generation named by lease. A zero lease is ignored.
func (c *RedisBadgeCache) Fill(ctx context.Context, lease Lease, count int) {
	if lease.key == "" {
		return
	}
	if err := c.client.Set(ctx, lease.key, strconv.Itoa(count), c.ttl).Err(); err != nil {
		log.WithFields(log.Fields{"key": lease.key, "error": err}).Warn("Badge cache write failed")
	}
}

func (c *RedisBadgeCache) get(ctx context.Context, base string) (int, Lease, bool) {
	generation, err := c.client.Get(ctx, base+":gen").Int64()
	if errors.Is(err, redis.Nil) {
		generation = 0
	} else if err != nil {
		log.WithFields(log.Fields{"key": base, "error": err}).Warn("Badge cache read failed")
		return 0, Lease{}, false
	}

	lease := Lease{key: base + ":" + strconv.FormatInt(generation, 10)}
	value, err := c.client.Get(ctx, lease.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, lease, false
	}
	if err != nil {
		log.WithFields(log.Fields{"key": lease.key, "error": err}).Warn("Badge cache read failed")
		return 0, Lease{}, false
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, lease, false
	}
	return count, lease, true
}

// invalidate moves the badge to a new generation; values under older
// generations are left to expire
func (c *RedisBadgeCache) invalidate(ctx context.Context, base string) {
	genKey := base + ":gen"
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		log.WithFields(log.Fields{"key": genKey, "error": err}).Warn("Badge cache invalidation failed")
		return
	}
	if err := c.client.Expire(ctx, genKey, c.generationTTL).Err(); err != nil {
		log.WithFields(log.Fields{"key": genKey, "error": err}).Warn("Badge cache invalidation failed")
	}
}

// NopBadgeCache is used when Redis is not configured; every read misses
type NopBadgeCache struct{}

func (NopBadgeCache) UnreadCount(context.Context, string) (int, Lease, bool)      { return 0, Lease{}, false }
func (NopBadgeCache) PendingApprovals(context.Context, string) (int, Lease, bool) { return 0, Lease{}, false }
func (NopBadgeCache) Fill(context.Context, Lease, int)                            {}
func (NopBadgeCache) InvalidateUnread(context.Context, string)                    {}
func (NopBadgeCache) InvalidatePendingApprovals(context.Context, string)          {}
