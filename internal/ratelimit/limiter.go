// Package ratelimit implements fixed-window request counting per
// (key, category). Counters live in Redis so the limit holds across server
// instances; a window resets completely when its TTL elapses.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Category selects a limit configuration.
type Category string

const (
	// CategoryAuth guards login and registration against brute force.
	CategoryAuth Category = "AUTH"
	// CategoryAPI is the general authenticated API budget.
	CategoryAPI Category = "API"
	// CategoryMobileMutation bounds idempotent mobile mutations (check-in,
	// RSVP) which clients retry aggressively on flaky connections.
	CategoryMobileMutation Category = "MOBILE_MUTATION"
)

// Limit is the request budget for one category.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits returns the built-in category table.
func DefaultLimits() map[Category]Limit {
	return map[Category]Limit{
		CategoryAuth:           {Requests: 5, Window: 15 * time.Minute},
		CategoryAPI:            {Requests: 100, Window: time.Minute},
		CategoryMobileMutation: {Requests: 30, Window: time.Minute},
	}
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Store persists window counters. Incr creates the window with the given
// duration when absent or elapsed, otherwise increments the live window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Limiter checks request budgets against a Store.
type Limiter struct {
	store  Store
	limits map[Category]Limit
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter with the given store and limit table; pass
// nil limits for the defaults.
func NewLimiter(store Store, limits map[Category]Limit, logger *zap.Logger) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, limits: limits, logger: logger, now: time.Now}
}

// Check counts one request against (key, category) and decides whether it
// is within budget.
//
// When the counter store is unreachable the limiter fails open, except for
// CategoryAuth which fails closed: a storage outage must not silently
// disable brute-force protection on authentication endpoints.
func (l *Limiter) Check(ctx context.Context, key string, category Category) Decision {
	limit, ok := l.limits[category]
	if !ok {
		limit = l.limits[CategoryAPI]
	}

	count, remaining, err := l.store.Incr(ctx, windowKey(category, key), limit.Window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable",
			zap.String("category", string(category)), zap.Error(err))
		return Decision{
			Allowed: category != CategoryAuth,
			Limit:   limit.Requests,
			ResetAt: l.now().Add(limit.Window),
		}
	}

	left := limit.Requests - int(count)
	if left < 0 {
		left = 0
	}
	return Decision{
		Allowed:   int(count) <= limit.Requests,
		Remaining: left,
		Limit:     limit.Requests,
		ResetAt:   l.now().Add(remaining),
	}
}

func windowKey(category Category, key string) string {
	return "rl:" + string(category) + ":" + key
}
