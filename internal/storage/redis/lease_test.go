package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLeaser(t *testing.T, ttl time.Duration) *Leaser {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis integration test")
	}

	client := NewClient(url)
	t.Cleanup(func() { client.Close() })

	l := NewLeaser(client, ttl, zaptest.NewLogger(t))
	if err := l.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return l
}

func TestLeaser_ExclusiveUntilReleased(t *testing.T) {
	l := newTestLeaser(t, time.Minute)
	ctx := context.Background()
	id := uuid.New().String()

	release, err := l.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := l.Acquire(ctx, id); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("second Acquire = %v, want ErrLeaseHeld", err)
	}

	release()

	release2, err := l.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

func TestLeaser_StaleReleaseKeepsNewOwner(t *testing.T) {
	l := newTestLeaser(t, 200*time.Millisecond)
	ctx := context.Background()
	id := uuid.New().String()

	stale, err := l.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	l.ttl = time.Minute
	current, err := l.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	defer current()

	stale()

	if _, err := l.Acquire(ctx, id); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("stale release removed the new lease: %v", err)
	}
}

func TestLeaser_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	core, logs := observer.New(zap.WarnLevel)
	l := NewLeaser(client, time.Minute, zap.New(core))

	l.release(keyPrefix+"m-1", "token")

	entries := logs.FilterMessage("Failed to release lease").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["key"]; got != keyPrefix+"m-1" {
		t.Fatalf("logged key = %v", got)
	}
}

func TestLeaser_AcquireErrorWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLeaser(client, time.Minute, zaptest.NewLogger(t))
	release, err := l.Acquire(context.Background(), "m-1")
	if err == nil || errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("Acquire error = %v, want a connection error", err)
	}
	if release != nil {
		t.Fatal("release func returned with error")
	}
}
