// Package cache provides the Redis-backed hot-path cache for embed token
// validation.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storyweave/consentd/internal/core/domain"
)

// InvalidationChannel carries token-hash invalidation events to peer nodes so
// a revocation on one node kills cached state everywhere.
const InvalidationChannel = "consent:invalidation"

const keyPrefix = "consent:token:"

// localTombstoneTTL bounds how long a peer-announced revocation is held in
// process; the Redis tombstone and the database row outlive it.
const localTombstoneTTL = 24 * time.Hour

type RedisCache struct {
	client *redis.Client

	// local holds token hashes whose revocation arrived over the
	// invalidation channel, so peer revocations are honored without a Redis
	// round-trip per render. Values are expiry times.
	mu    sync.Mutex
	local map[string]time.Time
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, local: make(map[string]time.Time)}
}

// NewRedisCacheFromClient wraps an existing client, used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, local: make(map[string]time.Time)}
}

// GetStatus returns a cached dead-token status. Only revoked/expired statuses
// are cached; an absent key means the database must be consulted.
func (r *RedisCache) GetStatus(ctx context.Context, tokenHash string) (domain.TokenStatus, bool) {
	r.mu.Lock()
	if exp, ok := r.local[tokenHash]; ok {
		if time.Now().Before(exp) {
			r.mu.Unlock()
			return domain.TokenRevoked, true
		}
		delete(r.local, tokenHash)
	}
	r.mu.Unlock()

	val, err := r.client.Get(ctx, keyPrefix+tokenHash).Result()
	if err != nil {
		return "", false
	}
	return domain.TokenStatus(val), true
}

func (r *RedisCache) SetStatus(ctx context.Context, tokenHash string, status domain.TokenStatus, ttl time.Duration) {
	r.client.Set(ctx, keyPrefix+tokenHash, string(status), ttl)
}

// Invalidate publishes a token-hash invalidation event to all nodes.
func (r *RedisCache) Invalidate(ctx context.Context, tokenHash string) error {
	return r.client.Publish(ctx, InvalidationChannel, tokenHash).Err()
}

// Subscribe returns a channel that receives invalidated token hashes.
func (r *RedisCache) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	return pubsub.Channel()
}

// Listen consumes invalidation events and mirrors them into the local
// tombstone set. Run it once per process; it returns when ctx is cancelled.
func (r *RedisCache) Listen(ctx context.Context) {
	ch := r.Subscribe(ctx)
	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.mu.Lock()
			r.local[msg.Payload] = time.Now().Add(localTombstoneTTL)
			r.mu.Unlock()
		case <-sweep.C:
			r.mu.Lock()
			now := time.Now()
			for hash, exp := range r.local {
				if now.After(exp) {
					delete(r.local, hash)
				}
			}
			r.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
