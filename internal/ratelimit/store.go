package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a single CounterStore.Hit.
type Result struct {
	Allowed bool
	// Breached is the index of the first tier without room, or -1.
	Breached int
	// Counts holds the per-tier hit counts including this hit when allowed.
	Counts []int
}

// CounterStore records hits atomically per key. Hit must check every tier
// and either record the hit in all of them or in none.
type CounterStore interface {
	Hit(ctx context.Context, key string, tiers []Tier, now time.Time) (Result, error)
}

// MemoryStore is a sliding-log CounterStore held in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	mu       sync.Mutex
	logs     map[string][]time.Time
	lastSeen time.Time
	evicted  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Hit implements CounterStore.
func (s *MemoryStore) Hit(_ context.Context, key string, tiers []Tier, now time.Time) (Result, error) {
	for {
		w := s.window(key)
		w.mu.Lock()
		if w.evicted {
			// Lost a race with cleanup; fetch the replacement.
			w.mu.Unlock()
			continue
		}
		res := w.hit(tiers, now)
		w.mu.Unlock()
		return res, nil
	}
}

func (s *MemoryStore) window(key string) *window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &window{logs: make(map[string][]time.Time)}
		s.windows[key] = w
	}
	return w
}

func (w *window) hit(tiers []Tier, now time.Time) Result {
	w.lastSeen = now

	counts := make([]int, len(tiers))
	for i, t := range tiers {
		log := trim(w.logs[t.Name], now, t.Window)
		w.logs[t.Name] = log
		if len(log) >= t.Limit {
			return Result{Breached: i}
		}
		counts[i] = len(log)
	}

	for i, t := range tiers {
		w.logs[t.Name] = append(w.logs[t.Name], now)
		counts[i]++
	}
	return Result{Allowed: true, Breached: -1, Counts: counts}
}

// trim drops hits that have left the trailing window. The log is ordered.
func trim(log []time.Time, now time.Time, size time.Duration) []time.Time {
	i := 0
	for i < len(log) && now.Sub(log[i]) >= size {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

// StartCleanup spawns a goroutine that removes keys idle for longer than
// maxIdle every interval. Returns a cancel function that stops it.
func (s *MemoryStore) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(maxIdle)
			}
		}
	}()
	return cancel
}

// Cleanup removes keys idle for longer than maxIdle and returns how many
// were removed.
func (s *MemoryStore) Cleanup(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		if w.lastSeen.Before(cutoff) {
			w.evicted = true
			delete(s.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys (for metrics and testing).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
