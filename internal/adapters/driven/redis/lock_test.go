package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewLock(t *testing.T) {
	client, _ := setupTestRedis(t)

	a := NewLock(client)
	b := NewLock(client)

	if a.OwnerID() == "" {
		t.Fatal("expected non-empty owner ID")
	}
	if a.OwnerID() == b.OwnerID() {
		t.Error("expected distinct owner IDs per lock instance")
	}
}

func TestLock_Acquire_Contention(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	first := NewLock(client)
	second := NewLock(client)

	ok, err := first.Acquire(ctx, "ingest:https://example.com", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	ok, err = second.Acquire(ctx, "ingest:https://example.com", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail while held")
	}

	// Not reentrant
	ok, _ = first.Acquire(ctx, "ingest:https://example.com", time.Minute)
	if ok {
		t.Error("expected reacquire by holder to fail")
	}

	got, err := mr.Get(lockPrefix + "ingest:https://example.com")
	if err != nil {
		t.Fatalf("expected key to exist: %v", err)
	}
	if got != first.OwnerID() {
		t.Errorf("expected value %q, got %q", first.OwnerID(), got)
	}
}

func TestLock_Acquire_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	crashed := NewLock(client)
	next := NewLock(client)

	if ok, _ := crashed.Acquire(ctx, "job", 5*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	mr.FastForward(6 * time.Second)

	ok, err := next.Acquire(ctx, "job", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected acquire after TTL expiry to succeed")
	}
}

func TestLock_Release(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)
	if ok, _ := lock.Acquire(ctx, "job", time.Minute); !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := lock.Release(ctx, "job"); err != nil {
		t.Fatalf("unexpected error on release: %v", err)
	}

	ok, err := NewLock(client).Acquire(ctx, "job", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected acquire after release to succeed")
	}
}

func TestLock_Release_NotHeld(t *testing.T) {
	client, _ := setupTestRedis(t)

	if err := NewLock(client).Release(context.Background(), "job"); err != nil {
		t.Errorf("unexpected error releasing unheld lock: %v", err)
	}
}

func TestLock_Release_ByDifferentOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	holder := NewLock(client)
	other := NewLock(client)

	if ok, _ := holder.Acquire(ctx, "job", time.Minute); !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := other.Release(ctx, "job"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(lockPrefix + "job") {
		t.Error("expected lock to survive release by a different owner")
	}
}

func TestLock_DifferentNames(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	for _, name := range []string{"ingest:https://a.example", "ingest:https://b.example"} {
		ok, err := lock.Acquire(ctx, name, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Errorf("expected to acquire %s", name)
		}
	}
}

func TestLock_Ping(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)

	if err := lock.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}

	mr.Close()
	if err := lock.Ping(context.Background()); err == nil {
		t.Error("expected ping error after server shutdown")
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.Close()

	_, err = Connect(context.Background(), "not a url")
	if err == nil || !strings.Contains(err.Error(), "invalid redis URL") {
		t.Errorf("expected invalid URL error, got %v", err)
	}
}
