package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/internal/models"
	"github.com/gracehub/backend/pkg/apperr"
	"github.com/gracehub/backend/pkg/database"
)

// memStore serializes transactions with a mutex, the in-process equivalent
// of serializable isolation: each transaction observes a consistent
// snapshot and commits alone.
type memStore struct {
	mu           sync.Mutex
	reservations []*models.Reservation
	seq          int64
	// conflicts injects this many serialization failures before a
	// transaction is allowed through.
	conflicts int
	attempts  int
}

type memTx struct {
	s *memStore
	// staged mutations commit only when the transaction function returns
	// nil; errors roll the transaction back.
	staged []func()
}

func (s *memStore) InTx(_ context.Context, fn func(tx ReservationTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.conflicts > 0 {
		s.conflicts--
		return apperr.E(apperr.KindCapacityRaceRetry, "reservation conflict")
	}
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, commit := range tx.staged {
		commit()
	}
	return nil
}

func (t *memTx) CountGoing(_ context.Context, eventID uuid.UUID) (int, error) {
	n := 0
	for _, r := range t.s.reservations {
		if r.EventID == eventID && r.Status == models.StatusGoing {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ActiveReservation(_ context.Context, eventID, userID uuid.UUID) (*models.Reservation, error) {
	for _, r := range t.s.reservations {
		if r.EventID == eventID && r.UserID == userID && r.Status != models.StatusCancelled {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) Insert(_ context.Context, res *models.Reservation) error {
	for _, r := range t.s.reservations {
		if r.EventID == res.EventID && r.UserID == res.UserID && r.Status != models.StatusCancelled {
			return apperr.E(apperr.KindAlreadyRegistered, "already registered for this event")
		}
	}
	cp := *res
	t.staged = append(t.staged, func() {
		t.s.seq++
		cp.Seq = t.s.seq
		t.s.reservations = append(t.s.reservations, &cp)
	})
	return nil
}

func (t *memTx) Cancel(_ context.Context, reservationID uuid.UUID, at time.Time) error {
	t.staged = append(t.staged, func() {
		for _, r := range t.s.reservations {
			if r.ID == reservationID {
				r.Status = models.StatusCancelled
				cancelled := at
				r.CancelledAt = &cancelled
			}
		}
	})
	return nil
}

func (t *memTx) OldestWaitlisted(_ context.Context, eventID uuid.UUID) (*models.Reservation, error) {
	var oldest *models.Reservation
	for _, r := range t.s.reservations {
		if r.EventID != eventID || r.Status != models.StatusWaitlist {
			continue
		}
		if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) ||
			(r.CreatedAt.Equal(oldest.CreatedAt) && r.Seq < oldest.Seq) {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (t *memTx) Promote(_ context.Context, reservationID uuid.UUID) error {
	t.staged = append(t.staged, func() {
		for _, r := range t.s.reservations {
			if r.ID == reservationID && r.Status == models.StatusWaitlist {
				r.Status = models.StatusGoing
			}
		}
	})
	return nil
}

func (s *memStore) statusCounts(eventID uuid.UUID) (going, waitlisted, cancelled int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.EventID != eventID {
			continue
		}
		switch r.Status {
		case models.StatusGoing:
			going++
		case models.StatusWaitlist:
			waitlisted++
		case models.StatusCancelled:
			cancelled++
		}
	}
	return going, waitlisted, cancelled
}

// staticEvents serves fixed events to the engine.
type staticEvents map[uuid.UUID]*models.Event

func (s staticEvents) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	return s[id], nil
}

func newTestEvent(tenantID uuid.UUID, capacity int) *models.Event {
	return &models.Event{
		ID:       uuid.New(),
		ChurchID: tenantID,
		Scope:    models.ScopeWholeChurch,
		Title:    "Youth Camp",
		StartsAt: time.Now().Add(24 * time.Hour),
		Capacity: capacity,
		IsActive: true,
	}
}

func testActor(tenantID uuid.UUID, roles ...authz.Role) authz.Actor {
	if len(roles) == 0 {
		roles = []authz.Role{authz.RoleMember}
	}
	return authz.Actor{UserID: uuid.New(), TenantID: &tenantID, Roles: roles}
}

func TestRSVPCapacityNeverExceededUnderConcurrency(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 10)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.RSVP(context.Background(), testActor(tenant), ev.ID); err != nil {
				t.Errorf("rsvp: %v", err)
			}
		}()
	}
	wg.Wait()

	going, waitlisted, _ := store.statusCounts(ev.ID)
	if going != 10 {
		t.Fatalf("going = %d, want exactly capacity 10", going)
	}
	if waitlisted != 40 {
		t.Fatalf("waitlisted = %d, want 40", waitlisted)
	}
}

func TestRSVPDuplicateActiveRejected(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	actor := testActor(tenant)
	ctx := context.Background()

	if _, err := engine.RSVP(ctx, actor, ev.ID); err != nil {
		t.Fatalf("first rsvp: %v", err)
	}
	_, err := engine.RSVP(ctx, actor, ev.ID)
	if !apperr.Is(err, apperr.KindAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}

	going, waitlisted, _ := store.statusCounts(ev.ID)
	if going+waitlisted != 1 {
		t.Fatalf("active reservations = %d, want 1", going+waitlisted)
	}
}

func TestRSVPConcurrentDuplicatesKeepOneActive(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	actor := testActor(tenant)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.RSVP(context.Background(), actor, ev.ID)
		}()
	}
	wg.Wait()

	going, waitlisted, _ := store.statusCounts(ev.ID)
	if going+waitlisted != 1 {
		t.Fatalf("active reservations = %d, want 1", going+waitlisted)
	}
}

func TestZeroCapacityGoesStraightToWaitlist(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 0)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)

	res, err := engine.RSVP(context.Background(), testActor(tenant), ev.ID)
	if err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if res.Status != models.StatusWaitlist {
		t.Fatalf("status = %s, want WAITLIST", res.Status)
	}
}

func TestCancelPromotesOldestWaitlisted(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 1)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	ctx := context.Background()

	userA := testActor(tenant)
	userB := testActor(tenant)

	resA, err := engine.RSVP(ctx, userA, ev.ID)
	if err != nil {
		t.Fatalf("rsvp A: %v", err)
	}
	if resA.Status != models.StatusGoing {
		t.Fatalf("A status = %s, want GOING", resA.Status)
	}

	resB, err := engine.RSVP(ctx, userB, ev.ID)
	if err != nil {
		t.Fatalf("rsvp B: %v", err)
	}
	if resB.Status != models.StatusWaitlist {
		t.Fatalf("B status = %s, want WAITLIST", resB.Status)
	}

	cancelled, err := engine.Cancel(ctx, userA, ev.ID)
	if err != nil {
		t.Fatalf("cancel A: %v", err)
	}
	if cancelled.Status != models.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled reservation = %+v", cancelled)
	}

	store.mu.Lock()
	var bStatus models.ReservationStatus
	for _, r := range store.reservations {
		if r.ID == resB.ID {
			bStatus = r.Status
		}
	}
	store.mu.Unlock()
	if bStatus != models.StatusGoing {
		t.Fatalf("B status after A cancels = %s, want GOING", bStatus)
	}
}

func TestCancelWaitlistedDoesNotPromote(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 1)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	ctx := context.Background()

	userA := testActor(tenant)
	userB := testActor(tenant)
	userC := testActor(tenant)
	if _, err := engine.RSVP(ctx, userA, ev.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RSVP(ctx, userB, ev.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RSVP(ctx, userC, ev.ID); err != nil {
		t.Fatal(err)
	}

	// B leaves the waitlist: C must stay WAITLIST, the seat count is
	// unchanged.
	if _, err := engine.Cancel(ctx, userB, ev.ID); err != nil {
		t.Fatal(err)
	}
	going, waitlisted, cancelled := store.statusCounts(ev.ID)
	if going != 1 || waitlisted != 1 || cancelled != 1 {
		t.Fatalf("counts = going %d waitlist %d cancelled %d", going, waitlisted, cancelled)
	}
}

func TestWaitlistPromotionIsFIFO(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 1)
	store := &memStore{}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	ctx := context.Background()

	holder := testActor(tenant)
	if _, err := engine.RSVP(ctx, holder, ev.ID); err != nil {
		t.Fatal(err)
	}
	waiters := []authz.Actor{testActor(tenant), testActor(tenant), testActor(tenant)}
	for _, w := range waiters {
		if _, err := engine.RSVP(ctx, w, ev.ID); err != nil {
			t.Fatal(err)
		}
	}

	// Each cancellation promotes waiters in arrival order.
	current := holder
	for _, next := range waiters {
		if _, err := engine.Cancel(ctx, current, ev.ID); err != nil {
			t.Fatal(err)
		}
		res, err := store.activeFor(ev.ID, next.UserID)
		if err != nil {
			t.Fatal(err)
		}
		if res == nil || res.Status != models.StatusGoing {
			t.Fatalf("expected %s promoted in FIFO order, got %+v", next.UserID, res)
		}
		current = next
	}
}

func (s *memStore) activeFor(eventID, userID uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.EventID == eventID && r.UserID == userID && r.Status != models.StatusCancelled {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func TestCancelWithoutReservation(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	engine := NewEngine(staticEvents{ev.ID: ev}, &memStore{}, nil)

	_, err := engine.Cancel(context.Background(), testActor(tenant), ev.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSerializationConflictsRetriedThenBusy(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)

	// Two conflicts: the third attempt succeeds.
	store := &memStore{conflicts: 2}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	if _, err := engine.RSVP(context.Background(), testActor(tenant), ev.ID); err != nil {
		t.Fatalf("retryable conflicts should not surface: %v", err)
	}

	// Conflicts beyond the retry budget surface as Busy, not as the
	// transient kind.
	store = &memStore{conflicts: maxTxAttempts}
	engine = NewEngine(staticEvents{ev.ID: ev}, store, nil)
	_, err := engine.RSVP(context.Background(), testActor(tenant), ev.ID)
	if !apperr.Is(err, apperr.KindBusy) {
		t.Fatalf("expected Busy after exhausted retries, got %v", err)
	}
}

// noopTx satisfies pgx.Tx for contexts that only need to carry a
// transaction marker; the in-memory store never issues statements on it.
type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return nil, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) Conn() *pgx.Conn                                         { return nil }

func TestRSVPInsideEnclosingTransactionRunsOnce(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	ctx := database.WithTx(context.Background(), noopTx{})

	// The transaction owner holds the retry loop: a conflict poisons the
	// enclosing transaction, so it must surface as the transient kind
	// after a single attempt instead of being retried or mapped to Busy.
	store := &memStore{conflicts: 1}
	engine := NewEngine(staticEvents{ev.ID: ev}, store, nil)
	_, err := engine.RSVP(ctx, testActor(tenant), ev.ID)
	if !apperr.Is(err, apperr.KindCapacityRaceRetry) {
		t.Fatalf("expected transient conflict to surface, got %v", err)
	}
	if store.attempts != 1 {
		t.Fatalf("store saw %d attempts, want 1", store.attempts)
	}

	// Without a conflict the reservation goes through on that single
	// attempt.
	store = &memStore{}
	engine = NewEngine(staticEvents{ev.ID: ev}, store, nil)
	res, err := engine.RSVP(ctx, testActor(tenant), ev.ID)
	if err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if res.Status != models.StatusGoing {
		t.Fatalf("expected GOING, got %s", res.Status)
	}
	if store.attempts != 1 {
		t.Fatalf("store saw %d attempts, want 1", store.attempts)
	}
}

func TestVisibilityTenantIsolation(t *testing.T) {
	tenant := uuid.New()
	otherTenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	engine := NewEngine(staticEvents{ev.ID: ev}, &memStore{}, nil)
	ctx := context.Background()

	// Cross-tenant actors get a not-found-shaped denial regardless of
	// rank.
	for _, roles := range [][]authz.Role{
		{authz.RoleMember}, {authz.RoleLeader}, {authz.RoleAdmin}, {authz.RolePastor},
	} {
		_, err := engine.RSVP(ctx, testActor(otherTenant, roles...), ev.ID)
		if !apperr.Is(err, apperr.KindNotFoundOrForbidden) {
			t.Fatalf("roles %v: expected NotFoundOrForbidden, got %v", roles, err)
		}
	}

	// Super admins cross tenants.
	super := authz.Actor{UserID: uuid.New(), Roles: []authz.Role{authz.RoleSuperAdmin}}
	if _, err := engine.RSVP(ctx, super, ev.ID); err != nil {
		t.Fatalf("super admin rsvp: %v", err)
	}
}

func TestVisibilityLocalChurchScope(t *testing.T) {
	tenant := uuid.New()
	localA := uuid.New()
	localB := uuid.New()
	ev := newTestEvent(tenant, 5)
	ev.Scope = models.ScopeLocalChurch
	ev.LocalChurchID = &localA
	engine := NewEngine(staticEvents{ev.ID: ev}, &memStore{}, nil)
	ctx := context.Background()

	sameLocal := testActor(tenant)
	sameLocal.LocalChurchID = &localA
	if _, err := engine.RSVP(ctx, sameLocal, ev.ID); err != nil {
		t.Fatalf("same local church rsvp: %v", err)
	}

	otherLocal := testActor(tenant)
	otherLocal.LocalChurchID = &localB
	_, err := engine.RSVP(ctx, otherLocal, ev.ID)
	if !apperr.Is(err, apperr.KindNotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden for other local church, got %v", err)
	}
}

func TestVisibilityRoleAllowlist(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	ev.VisibleToRoles = []authz.Role{authz.RoleLeader}
	engine := NewEngine(staticEvents{ev.ID: ev}, &memStore{}, nil)
	ctx := context.Background()

	if _, err := engine.RSVP(ctx, testActor(tenant, authz.RoleLeader), ev.ID); err != nil {
		t.Fatalf("leader rsvp: %v", err)
	}
	_, err := engine.RSVP(ctx, testActor(tenant, authz.RoleMember), ev.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden for member, got %v", err)
	}
}

func TestInactiveEventRejected(t *testing.T) {
	tenant := uuid.New()
	ev := newTestEvent(tenant, 5)
	ev.IsActive = false
	engine := NewEngine(staticEvents{ev.ID: ev}, &memStore{}, nil)

	_, err := engine.RSVP(context.Background(), testActor(tenant), ev.ID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound for inactive event, got %v", err)
	}
}

func TestUnknownEvent(t *testing.T) {
	engine := NewEngine(staticEvents{}, &memStore{}, nil)
	_, err := engine.RSVP(context.Background(), testActor(uuid.New()), uuid.New())
	if !apperr.Is(err, apperr.KindNotFoundOrForbidden) {
		t.Fatalf("expected NotFoundOrForbidden, got %v", err)
	}
}
