package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memoryStore is an in-process Store with a controllable clock.
type memoryStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	now     time.Time
	fail    error
}

type memWindow struct {
	count     int64
	expiresAt time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{windows: make(map[string]*memWindow), now: time.Unix(1_700_000_000, 0)}
}

func (s *memoryStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *memoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, 0, s.fail
	}
	w, ok := s.windows[key]
	if !ok || !s.now.Before(w.expiresAt) {
		w = &memWindow{expiresAt: s.now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(s.now), nil
}

func TestCheckBoundary(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, map[Category]Limit{
		CategoryAPI: {Requests: 5, Window: time.Minute},
	}, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := limiter.Check(ctx, "1.2.3.4:u1", CategoryAPI)
		if !d.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if d.Remaining != 5-i {
			t.Fatalf("call %d remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d := limiter.Check(ctx, "1.2.3.4:u1", CategoryAPI)
	if d.Allowed {
		t.Fatal("6th call within window should be rejected")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", d.Remaining)
	}
}

func TestWindowResetsAfterElapse(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, map[Category]Limit{
		CategoryAPI: {Requests: 2, Window: time.Minute},
	}, nil)
	ctx := context.Background()

	limiter.Check(ctx, "k", CategoryAPI)
	limiter.Check(ctx, "k", CategoryAPI)
	if d := limiter.Check(ctx, "k", CategoryAPI); d.Allowed {
		t.Fatal("over budget, should reject")
	}

	store.advance(61 * time.Second)

	d := limiter.Check(ctx, "k", CategoryAPI)
	if !d.Allowed {
		t.Fatal("first call after window elapses should start a fresh window")
	}
	if d.Remaining != 1 {
		t.Fatalf("fresh window remaining = %d, want 1", d.Remaining)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, map[Category]Limit{
		CategoryAPI: {Requests: 1, Window: time.Minute},
	}, nil)
	ctx := context.Background()

	if d := limiter.Check(ctx, "a", CategoryAPI); !d.Allowed {
		t.Fatal("first call on key a")
	}
	if d := limiter.Check(ctx, "a", CategoryAPI); d.Allowed {
		t.Fatal("second call on key a should reject")
	}
	if d := limiter.Check(ctx, "b", CategoryAPI); !d.Allowed {
		t.Fatal("key b must not be affected by key a")
	}
}

func TestStoreOutageFailPolicy(t *testing.T) {
	store := newMemoryStore()
	store.fail = errors.New("connection refused")
	limiter := NewLimiter(store, nil, nil)
	ctx := context.Background()

	if d := limiter.Check(ctx, "k", CategoryAPI); !d.Allowed {
		t.Fatal("API traffic should fail open on store outage")
	}
	if d := limiter.Check(ctx, "k", CategoryMobileMutation); !d.Allowed {
		t.Fatal("mobile mutations should fail open on store outage")
	}
	if d := limiter.Check(ctx, "k", CategoryAuth); d.Allowed {
		t.Fatal("AUTH must fail closed on store outage")
	}
}

func TestResetAtTracksWindow(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, map[Category]Limit{
		CategoryAPI: {Requests: 10, Window: time.Minute},
	}, nil)
	base := time.Unix(2_000_000_000, 0)
	limiter.now = func() time.Time { return base }

	d := limiter.Check(context.Background(), "k", CategoryAPI)
	if got := d.ResetAt.Sub(base); got != time.Minute {
		t.Fatalf("ResetAt offset = %v, want 1m", got)
	}
}
