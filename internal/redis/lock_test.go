package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (SlotLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSlotLocker(client), mr
}

func TestTryAcquireIsExclusive(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	token, ok, err := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	_, ok, err = locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire on held slot must fail fast")
	}
}

func TestTryAcquireDifferentKeysIndependent(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	if _, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute); !ok {
		t.Fatal("acquire slot A")
	}
	// Same window, different provider.
	if _, ok, _ := locker.TryAcquire(ctx, orgID, uuid.New(), start, end, time.Minute); !ok {
		t.Fatal("different provider must not contend")
	}
	// Same provider, different org.
	if _, ok, _ := locker.TryAcquire(ctx, uuid.New(), providerID, start, end, time.Minute); !ok {
		t.Fatal("different org must not contend")
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	const callers = 20
	var wins int64
	var wg sync.WaitGroup
	wg.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, ok, err := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestReleaseFreesSlot(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	token, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
	if !ok {
		t.Fatal("acquire")
	}
	if err := locker.Release(ctx, orgID, providerID, start, end, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute); !ok {
		t.Fatal("slot should be claimable after release")
	}
}

func TestReleaseWithForeignTokenKeepsLock(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	if _, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute); !ok {
		t.Fatal("acquire")
	}
	if err := locker.Release(ctx, orgID, providerID, start, end, "not-the-token"); err != nil {
		t.Fatalf("release with foreign token should be a no-op, got %v", err)
	}
	if _, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute); ok {
		t.Fatal("lock must survive a release by a non-owner")
	}
}

func TestRefreshExtendsHeldLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	token, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
	if !ok {
		t.Fatal("acquire")
	}

	if err := locker.Refresh(ctx, orgID, providerID, start, end, token, 10*time.Minute); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Past the original TTL but inside the refreshed one.
	mr.FastForward(5 * time.Minute)
	if _, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute); ok {
		t.Fatal("lock should still be held after refresh")
	}
}

func TestRefreshAfterExpiryFails(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	orgID := uuid.New()
	providerID := uuid.New()
	start := time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	token, ok, _ := locker.TryAcquire(ctx, orgID, providerID, start, end, time.Minute)
	if !ok {
		t.Fatal("acquire")
	}

	mr.FastForward(2 * time.Minute)

	err := locker.Refresh(ctx, orgID, providerID, start, end, token, time.Minute)
	if !errors.Is(err, ErrLockNotHeld) {
		t.Fatalf("expected ErrLockNotHeld, got %v", err)
	}
}
