package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/storyweave/consentd/internal/core/domain"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheFromClient(client), mr
}

func TestTombstoneRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.GetStatus(ctx, "hash-1"); ok {
		t.Fatal("expected miss for unknown hash")
	}

	c.SetStatus(ctx, "hash-1", domain.TokenRevoked, time.Hour)

	status, ok := c.GetStatus(ctx, "hash-1")
	if !ok {
		t.Fatal("expected hit after SetStatus")
	}
	if status != domain.TokenRevoked {
		t.Errorf("status = %s, want revoked", status)
	}

	// The tombstone expires with its TTL.
	mr.FastForward(2 * time.Hour)
	if _, ok := c.GetStatus(ctx, "hash-1"); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestInvalidateBroadcasts(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ch := c.Subscribe(ctx)
	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := c.Invalidate(ctx, "hash-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Payload != "hash-1" {
			t.Errorf("payload = %q, want hash-1", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation message received")
	}
}

func TestPeerRevocationFillsLocalTombstones(t *testing.T) {
	mr := miniredis.RunT(t)
	listener := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	peer := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Listen(ctx)
	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := peer.Invalidate(ctx, "hash-9"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, ok := listener.GetStatus(ctx, "hash-9"); ok {
			if status != domain.TokenRevoked {
				t.Fatalf("status = %s, want revoked", status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("peer revocation never reached the local tombstone set")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The hit came from the local layer; no tombstone key was ever written.
	if mr.Exists(keyPrefix + "hash-9") {
		t.Error("invalidation must not write a Redis key")
	}
}

func TestPing(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if err := c.Ping(ctx); err == nil {
		t.Error("expected error after server shutdown")
	}
}
