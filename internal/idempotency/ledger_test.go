package idempotency

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gracehub/backend/pkg/apperr"
)

// memoryStore mirrors the ledger semantics of PGStore in process: committed
// records replay, an uncommitted claim blocks duplicates.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]memRecord
	pending map[string]bool
	now     time.Time
}

type memRecord struct {
	snapshot  []byte
	expiresAt time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: make(map[string]memRecord),
		pending: make(map[string]bool),
		now:     time.Unix(1_700_000_000, 0),
	}
}

func recordKey(actorID uuid.UUID, endpoint, key string) string {
	return actorID.String() + "|" + endpoint + "|" + key
}

func (s *memoryStore) Get(_ context.Context, actorID uuid.UUID, endpoint, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey(actorID, endpoint, key)]
	if !ok || !s.now.Before(rec.expiresAt) {
		return nil, false, nil
	}
	return rec.snapshot, true, nil
}

func (s *memoryStore) Run(ctx context.Context, actorID uuid.UUID, endpoint, key string, ttl time.Duration, fn Fn) ([]byte, error) {
	k := recordKey(actorID, endpoint, key)

	s.mu.Lock()
	if rec, ok := s.records[k]; ok && s.now.Before(rec.expiresAt) {
		s.mu.Unlock()
		return nil, apperr.E(apperr.KindDuplicateInFlight, "request already in flight")
	}
	if s.pending[k] {
		s.mu.Unlock()
		return nil, apperr.E(apperr.KindDuplicateInFlight, "request already in flight")
	}
	delete(s.records, k)
	s.pending[k] = true
	s.mu.Unlock()

	snapshot, err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, k)
	if err != nil {
		return nil, err
	}
	s.records[k] = memRecord{snapshot: snapshot, expiresAt: s.now.Add(ttl)}
	return snapshot, nil
}

func TestExecuteRunsOnceAndReplays(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"checkin_id":"abc"}`), nil
	}

	first, replayed, err := ledger.Execute(context.Background(), actor, "POST /checkins", "key-1", fn)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if replayed {
		t.Fatal("first execution must not be a replay")
	}

	second, replayed, err := ledger.Execute(context.Background(), actor, "POST /checkins", "key-1", fn)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !replayed {
		t.Fatal("second execution must replay")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("replayed snapshot differs: %s vs %s", first, second)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1", calls)
	}
}

func TestExecuteKeysAreScoped(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, time.Hour, nil)
	actorA, actorB := uuid.New(), uuid.New()
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	}

	ctx := context.Background()
	if _, _, err := ledger.Execute(ctx, actorA, "POST /checkins", "k", fn); err != nil {
		t.Fatal(err)
	}
	// Same key, different actor: independent execution.
	if _, _, err := ledger.Execute(ctx, actorB, "POST /checkins", "k", fn); err != nil {
		t.Fatal(err)
	}
	// Same actor and key, different endpoint: independent execution.
	if _, _, err := ledger.Execute(ctx, actorA, "POST /events/rsvp", "k", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("fn ran %d times, want 3", calls)
	}
}

func TestExecuteExpiredKeyRunsAgain(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	}

	ctx := context.Background()
	if _, _, err := ledger.Execute(ctx, actor, "e", "k", fn); err != nil {
		t.Fatal(err)
	}
	store.now = store.now.Add(2 * time.Hour)

	_, replayed, err := ledger.Execute(ctx, actor, "e", "k", fn)
	if err != nil {
		t.Fatal(err)
	}
	if replayed {
		t.Fatal("expired key must be treated as a new request")
	}
	if calls != 2 {
		t.Fatalf("fn ran %d times, want 2", calls)
	}
}

func TestExecuteFnErrorDoesNotRecord(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()
	boom := errors.New("storage down")
	calls := 0

	ctx := context.Background()
	_, _, err := ledger.Execute(ctx, actor, "e", "k", func(context.Context) ([]byte, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// A failed execution leaves no record: the retry runs fn again.
	_, replayed, err := ledger.Execute(ctx, actor, "e", "k", func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	})
	if err != nil || replayed {
		t.Fatalf("retry after failure: replayed=%v err=%v", replayed, err)
	}
	if calls != 2 {
		t.Fatalf("fn ran %d times, want 2", calls)
	}
}

func TestConcurrentDuplicatesExecuteOnce(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	fn := func(context.Context) ([]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return []byte("ok"), nil
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = ledger.Execute(context.Background(), actor, "e", "k", fn)
		}(i)
	}
	// Let both goroutines race for the claim, then release the winner.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("fn ran %d times under concurrent duplicates, want 1", calls)
	}
	// The loser either replays the winner's result or reports the race;
	// it must never run fn a second time.
	for _, err := range results {
		if err != nil && !apperr.Is(err, apperr.KindDuplicateInFlight) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestExecuteRequiresKey(t *testing.T) {
	ledger := NewLedger(newMemoryStore(), time.Hour, nil)
	_, _, err := ledger.Execute(context.Background(), uuid.New(), "e", "", func(context.Context) ([]byte, error) {
		return nil, nil
	})
	if !apperr.Is(err, apperr.KindInvalid) {
		t.Fatalf("expected Invalid for empty key, got %v", err)
	}
}

// conflictStore injects serialization conflicts ahead of the real run, the
// way a serializable ledger transaction aborts when a guarded reservation
// races another writer. The aborted attempt takes claim and mutation down
// together, so the whole unit is rerunnable.
type conflictStore struct {
	*memoryStore
	conflicts int
}

func (s *conflictStore) Run(ctx context.Context, actorID uuid.UUID, endpoint, key string, ttl time.Duration, fn Fn) ([]byte, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return nil, apperr.E(apperr.KindCapacityRaceRetry, "ledger transaction conflict")
	}
	return s.memoryStore.Run(ctx, actorID, endpoint, key, ttl, fn)
}

func TestExecuteRerunsConflictedTransaction(t *testing.T) {
	store := &conflictStore{memoryStore: newMemoryStore(), conflicts: 2}
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"status":"GOING"}`), nil
	}

	first, replayed, err := ledger.Execute(context.Background(), actor, "POST /events/1/rsvp", "key-1", fn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if replayed {
		t.Fatal("fresh execution must not be a replay")
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1", calls)
	}

	// A client retry with the same key replays the committed snapshot; it
	// must never see a duplicate-registration error for a mutation that
	// succeeded.
	second, replayed, err := ledger.Execute(context.Background(), actor, "POST /events/1/rsvp", "key-1", fn)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !replayed {
		t.Fatal("retry must replay")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("replayed snapshot differs: %s vs %s", first, second)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times after retry, want 1", calls)
	}
}

func TestExecutePersistentConflictSurfacesBusy(t *testing.T) {
	store := &conflictStore{memoryStore: newMemoryStore(), conflicts: maxRunAttempts}
	ledger := NewLedger(store, time.Hour, nil)
	actor := uuid.New()

	_, _, err := ledger.Execute(context.Background(), actor, "POST /events/1/rsvp", "key-1",
		func(context.Context) ([]byte, error) {
			t.Fatal("fn must not run while the claim keeps aborting")
			return nil, nil
		})
	if !apperr.Is(err, apperr.KindBusy) {
		t.Fatalf("expected Busy after exhausted reruns, got %v", err)
	}

	// Nothing was recorded, so a later retry executes fresh.
	if _, found, _ := store.Get(context.Background(), actor, "POST /events/1/rsvp", "key-1"); found {
		t.Fatal("aborted transaction must not leave a record")
	}
}
