package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Decision describes how a request was treated.
type Decision struct {
	Allowed bool
	Exempt  bool
	// Tier is the tightest tier after an allowed hit, or the breached tier.
	Tier      Tier
	Remaining int
}

// Limiter enforces Tiers for guest identities.
type Limiter struct {
	tiers  []Tier
	store  CounterStore
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger.With("component", "rate_limiter") }
}

// New creates a Limiter checking tiers in the given order.
func New(store CounterStore, tiers []Tier, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limiter requires a counter store")
	}
	if len(tiers) == 0 {
		return nil, errors.New("rate limiter requires at least one tier")
	}
	seen := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %s", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	l := &Limiter{
		tiers:  append([]Tier(nil), tiers...),
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "rate_limiter"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Tiers returns a copy of the configured tiers.
func (l *Limiter) Tiers() []Tier {
	return append([]Tier(nil), l.tiers...)
}

// Allow counts one request for id. Exempt identities return immediately
// without consulting the store. A rejected request returns an
// *ExceededError naming the first breached tier; a store failure returns an
// error wrapping ErrStoreUnavailable.
func (l *Limiter) Allow(ctx context.Context, id Identity) (Decision, error) {
	if id.Exempt() {
		return Decision{Allowed: true, Exempt: true}, nil
	}

	res, err := l.store.Hit(ctx, id.Key, l.tiers, l.now())
	if err != nil {
		l.logger.ErrorContext(ctx, "counter store failed", "error", err, "caller_key", id.Key)
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !res.Allowed {
		t := l.tiers[res.Breached]
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"caller_key", id.Key,
			"tier", t.Name,
			"limit", t.Limit,
			"window", t.Window.String())
		return Decision{Tier: t}, &ExceededError{Tier: t.Name, Limit: t.Limit, RetryAfter: t.Window}
	}

	d := Decision{Allowed: true, Tier: l.tiers[0], Remaining: l.tiers[0].Limit - res.Counts[0]}
	for i, t := range l.tiers[1:] {
		if rem := t.Limit - res.Counts[i+1]; rem < d.Remaining {
			d.Tier, d.Remaining = t, rem
		}
	}
	return d, nil
}
