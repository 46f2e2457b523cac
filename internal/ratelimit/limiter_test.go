package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var guest = Identity{Key: "guest:10.0.0.1", Class: ClassGuest}

func newLimiter(t *testing.T, clock *fakeClock, tiers ...Tier) (*Limiter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.now = clock.Now
	l, err := New(store, tiers, WithClock(clock.Now))
	require.NoError(t, err)
	return l, store
}

func TestNewValidatesTiers(t *testing.T) {
	store := NewMemoryStore()

	_, err := New(nil, []Tier{{Name: "m", Limit: 1, Window: time.Second}})
	assert.Error(t, err)
	_, err = New(store, nil)
	assert.Error(t, err)
	_, err = New(store, []Tier{{Name: "m", Limit: 0, Window: time.Second}})
	assert.Error(t, err)
	_, err = New(store, []Tier{{Name: "m", Limit: 1, Window: 0}})
	assert.Error(t, err)
	_, err = New(store, []Tier{{Name: "m", Limit: 1, Window: time.Second}, {Name: "m", Limit: 2, Window: time.Hour}})
	assert.Error(t, err)
}

func TestRejectsNPlusOneWithinWindow(t *testing.T) {
	const n = 5
	clock := newFakeClock()
	l, _ := newLimiter(t, clock, Tier{Name: "per-minute", Limit: n, Window: time.Minute})

	for i := 0; i < n; i++ {
		d, err := l.Allow(context.Background(), guest)
		require.NoError(t, err, "request %d", i+1)
		assert.Equal(t, n-i-1, d.Remaining)
		clock.Advance(time.Second)
	}

	_, err := l.Allow(context.Background(), guest)
	require.Error(t, err)

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.ErrorIs(t, err, ErrExceeded)
	assert.Equal(t, "per-minute", exceeded.Tier)
	assert.Equal(t, time.Minute, exceeded.RetryAfter)
	assert.Equal(t, 60, exceeded.RetryAfterSeconds())
}

func TestEvenlySpacedRequestsNeverRejected(t *testing.T) {
	const n = 10
	window := time.Minute
	clock := newFakeClock()
	l, _ := newLimiter(t, clock, Tier{Name: "per-minute", Limit: n, Window: window})

	step := 2 * window / n
	for i := 0; i < n; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.NoError(t, err, "request %d", i+1)
		clock.Advance(step)
	}
}

func TestSlidingWindowHasNoBoundaryBurst(t *testing.T) {
	clock := newFakeClock()
	l, _ := newLimiter(t, clock, Tier{Name: "per-minute", Limit: 3, Window: time.Minute})

	// Three hits just before a fixed-bucket boundary...
	clock.Advance(59 * time.Second)
	for i := 0; i < 3; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.NoError(t, err)
	}
	// ...cannot be followed by three more just after it.
	clock.Advance(2 * time.Second)
	_, err := l.Allow(context.Background(), guest)
	assert.ErrorIs(t, err, ErrExceeded)

	// Once the hits slide out of the trailing minute, room returns.
	clock.Advance(58 * time.Second)
	_, err = l.Allow(context.Background(), guest)
	assert.NoError(t, err)
}

func TestRejectedCallsDoNotConsumeBudget(t *testing.T) {
	clock := newFakeClock()
	l, _ := newLimiter(t, clock, Tier{Name: "per-minute", Limit: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.ErrorIs(t, err, ErrExceeded)
	}

	clock.Advance(time.Minute)
	_, err := l.Allow(context.Background(), guest)
	assert.NoError(t, err, "rejected calls must not extend the penalty")
}

func TestTiersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l, _ := newLimiter(t, clock,
		Tier{Name: "per-minute", Limit: 3, Window: time.Minute},
		Tier{Name: "per-hour", Limit: 5, Window: time.Hour},
	)

	for i := 0; i < 3; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.NoError(t, err)
	}
	_, err := l.Allow(context.Background(), guest)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "per-minute", exceeded.Tier)

	clock.Advance(time.Minute)
	d, err := l.Allow(context.Background(), guest)
	require.NoError(t, err, "minute budget has slid back open")
	assert.Equal(t, "per-hour", d.Tier.Name, "hourly tier is now the tightest")
	assert.Equal(t, 1, d.Remaining)

	d, err = l.Allow(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Remaining)

	clock.Advance(time.Minute)
	_, err = l.Allow(context.Background(), guest)
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "per-hour", exceeded.Tier)
	assert.Equal(t, time.Hour, exceeded.RetryAfter)
}

type countingStore struct {
	hits atomic.Int32
}

func (s *countingStore) Hit(ctx context.Context, key string, tiers []Tier, now time.Time) (Result, error) {
	s.hits.Add(1)
	return Result{Allowed: true, Breached: -1, Counts: make([]int, len(tiers))}, nil
}

func TestExemptIdentitiesNeverTouchStore(t *testing.T) {
	const n = 3
	store := &countingStore{}
	l, err := New(store, []Tier{{Name: "per-minute", Limit: n, Window: time.Minute}})
	require.NoError(t, err)

	for _, id := range []Identity{
		{Key: "user:alice", Class: ClassUser},
		{Key: "apikey:abcdefgh", Class: ClassAPIKey},
	} {
		for i := 0; i < 10*n; i++ {
			d, err := l.Allow(context.Background(), id)
			require.NoError(t, err)
			assert.True(t, d.Exempt)
		}
	}
	assert.Zero(t, store.hits.Load())
}

func TestExemptTrafficDoesNotDepleteGuestBudget(t *testing.T) {
	clock := newFakeClock()
	l, store := newLimiter(t, clock, Tier{Name: "per-minute", Limit: 2, Window: time.Minute})
	user := Identity{Key: "user:alice", Class: ClassUser}

	for i := 0; i < 20; i++ {
		_, err := l.Allow(context.Background(), user)
		require.NoError(t, err)
	}
	assert.Zero(t, store.Len())

	for i := 0; i < 2; i++ {
		_, err := l.Allow(context.Background(), guest)
		require.NoError(t, err)
	}
}

func TestConcurrentBurstCountsExactly(t *testing.T) {
	const limit = 50
	clock := newFakeClock()
	l, _ := newLimiter(t, clock, Tier{Name: "per-minute", Limit: limit, Window: time.Minute})

	var allowed, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Allow(context.Background(), guest); err != nil {
				rejected.Add(1)
				return
			}
			allowed.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), allowed.Load())
	assert.Equal(t, int32(3*limit), rejected.Load())
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, []Tier, time.Time) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func TestStoreFailureFailsClosed(t *testing.T) {
	l, err := New(failingStore{}, []Tier{{Name: "per-minute", Limit: 1, Window: time.Minute}})
	require.NoError(t, err)

	d, err := l.Allow(context.Background(), guest)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, d.Allowed)
}

func TestMemoryStoreCleanup(t *testing.T) {
	clock := newFakeClock()
	l, store := newLimiter(t, clock, Tier{Name: "per-minute", Limit: 2, Window: time.Minute})

	_, err := l.Allow(context.Background(), Identity{Key: "guest:a", Class: ClassGuest})
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = l.Allow(context.Background(), Identity{Key: "guest:b", Class: ClassGuest})
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, store.Cleanup(time.Minute))
	assert.Equal(t, 1, store.Len())

	// An evicted key starts over with a fresh budget.
	for i := 0; i < 2; i++ {
		_, err := l.Allow(context.Background(), Identity{Key: "guest:a", Class: ClassGuest})
		require.NoError(t, err)
	}
}

func TestStartCleanupStops(t *testing.T) {
	store := NewMemoryStore()
	stop := store.StartCleanup(time.Millisecond, time.Hour)
	time.Sleep(5 * time.Millisecond)
	stop()
}
