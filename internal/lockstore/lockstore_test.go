package lockstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/meetbot/platform/internal/canonical"
	"github.com/meetbot/platform/internal/circuitbreaker"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	wrapper := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	return New(wrapper), s
}

func testTriple() canonical.Triple {
	return canonical.Triple{Platform: canonical.Zoom, NativeMeetingID: "123456789", Token: "tok-a"}
}

func TestTryLock_AcquiresThenRejects(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	triple := testTriple()

	ok, err := store.TryLock(ctx, triple, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first TryLock to succeed")
	}

	ok, err = store.TryLock(ctx, triple, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second TryLock to fail, lock already held")
	}
}

func TestRelease_ClearsLockAndMapping(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	triple := testTriple()

	if _, err := store.TryLock(ctx, triple, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.PutMapping(ctx, triple, "container-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Release(ctx, triple); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := store.TryLock(ctx, triple, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected lock to be acquirable again after release")
	}

	_, found, err := store.GetMapping(ctx, triple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected mapping to be cleared by release")
	}
}

func TestGetMapping_AbsentReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.GetMapping(ctx, testTriple())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no mapping to exist yet")
	}
}

func TestPutMapping_ThenGetMapping(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	triple := testTriple()

	if err := store.PutMapping(ctx, triple, "container-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	containerID, found, err := store.GetMapping(ctx, triple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected mapping to be found")
	}
	if containerID != "container-abc" {
		t.Errorf("expected container-abc, got %q", containerID)
	}
}

func TestSeenSegment_DedupLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seen, err := store.SeenSegment(ctx, 42, 1.0, 2.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("expected segment to be unseen initially")
	}

	if err := store.MarkSegment(ctx, 42, 1.0, 2.5, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen, err = store.SeenSegment(ctx, 42, 1.0, 2.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatal("expected segment to be seen after marking")
	}
}

func TestCachePartial_Overwrites(t *testing.T) {
	store, s := newTestStore(t)
	ctx := context.Background()

	if err := store.CachePartial(ctx, 7, 0.0, 1.0, "hello wor", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.CachePartial(ctx, 7, 0.0, 1.0, "hello world", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	val, err := s.Get(partialKey(7, 0.0, 1.0))
	if err != nil {
		t.Fatalf("unexpected error reading miniredis directly: %v", err)
	}
	if val != "hello world" {
		t.Errorf("expected latest partial text to win, got %q", val)
	}
}
