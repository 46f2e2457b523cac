package task

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the task table used by the scheduler, worker pool and query
// path. Every method returning a *Task returns a copy.
type Store interface {
	// Create inserts t. When exclusive is set and a non-terminal task
	// exists for the same (caller, subject, type), it returns a
	// *ConflictError and inserts nothing.
	Create(t *Task, exclusive bool) error
	Get(id string) (*Task, error)
	ListByCaller(callerID string) []*Task
	// Claim atomically moves a pending task to running.
	Claim(id string) (*Task, error)
	// Progress raises the running task's percentage (never lowers it) and
	// sets its current step.
	Progress(id string, pct int, step string) (*Task, error)
	// Finish writes a terminal state exactly once.
	Finish(id string, outcome Outcome) (*Task, error)
	// RequestCancel cancels a pending task immediately or flags a running
	// one for cooperative cancellation.
	RequestCancel(id string) (*Task, error)
	CancelRequested(id string) bool
	Remove(id string)
	Sweep(cutoff time.Time) int
	Len() int
}

// Outcome is the terminal write for a task.
type Outcome struct {
	State        State
	Result       *Result
	ErrorMessage string
	ErrorKind    string
}

type activeKey struct {
	caller  string
	subject string
	typ     Type
}

type record struct {
	mu              sync.Mutex
	task            Task
	seq             uint64
	cancelRequested bool
}

// MemoryStore is an in-memory Store. The table lock guards membership and
// indexes; each record has its own lock so updates to unrelated tasks do
// not contend.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*record
	active   map[activeKey]string
	byCaller map[string]map[string]struct{}
	seq      uint64
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*record),
		active:   make(map[activeKey]string),
		byCaller: make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func keyOf(t *Task) activeKey {
	return activeKey{caller: t.CallerID, subject: t.SubjectID, typ: t.Type}
}

// Create implements Store.
func (s *MemoryStore) Create(t *Task, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.records[t.ID]; dup {
		return fmt.Errorf("%w: duplicate task id %s", ErrInvalidRequest, t.ID)
	}

	key := keyOf(t)
	if existing, ok := s.active[key]; ok {
		if rec, ok := s.records[existing]; ok {
			rec.mu.Lock()
			live := !rec.task.State.IsTerminal()
			rec.mu.Unlock()
			if live && exclusive {
				return &ConflictError{ExistingID: existing}
			}
		}
	}

	s.seq++
	rec := &record{task: *t.Clone(), seq: s.seq}
	s.records[t.ID] = rec
	if exclusive {
		s.active[key] = t.ID
	}
	callerSet, ok := s.byCaller[t.CallerID]
	if !ok {
		callerSet = make(map[string]struct{})
		s.byCaller[t.CallerID] = callerSet
	}
	callerSet[t.ID] = struct{}{}
	return nil
}

func (s *MemoryStore) record(id string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Get implements Store.
func (s *MemoryStore) Get(id string) (*Task, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.task.Clone(), nil
}

// ListByCaller returns the caller's tasks, newest first.
func (s *MemoryStore) ListByCaller(callerID string) []*Task {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.byCaller[callerID]))
	for id := range s.byCaller[callerID] {
		recs = append(recs, s.records[id])
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	out := make([]*Task, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.task.Clone())
		rec.mu.Unlock()
	}
	return out
}

// Claim implements Store.
func (s *MemoryStore) Claim(id string) (*Task, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.task.State != StatePending {
		return nil, fmt.Errorf("%w: cannot claim task in state %s", ErrInvalidTransition, rec.task.State)
	}
	now := s.now().UTC()
	rec.task.State = StateRunning
	rec.task.StartedAt = &now
	return rec.task.Clone(), nil
}

// Progress implements Store.
func (s *MemoryStore) Progress(id string, pct int, step string) (*Task, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.task.State != StateRunning {
		return nil, fmt.Errorf("%w: progress on task in state %s", ErrInvalidTransition, rec.task.State)
	}
	pct = min(max(pct, 0), 100)
	if pct > rec.task.Progress {
		rec.task.Progress = pct
	}
	rec.task.CurrentStep = step
	return rec.task.Clone(), nil
}

// Finish implements Store.
func (s *MemoryStore) Finish(id string, outcome Outcome) (*Task, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	if !outcome.State.IsTerminal() || !rec.task.State.CanTransitionTo(outcome.State) {
		from := rec.task.State
		rec.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, outcome.State)
	}
	s.finishLocked(rec, outcome)
	out := rec.task.Clone()
	rec.mu.Unlock()

	s.releaseActive(out)
	return out, nil
}

func (s *MemoryStore) finishLocked(rec *record, outcome Outcome) {
	now := s.now().UTC()
	rec.task.State = outcome.State
	rec.task.FinishedAt = &now
	rec.task.Result = outcome.Result
	if outcome.State == StateCompleted {
		rec.task.Progress = 100
		rec.task.CurrentStep = ""
	}
	if outcome.State == StateFailed {
		rec.task.ErrorMessage = outcome.ErrorMessage
		rec.task.ErrorKind = outcome.ErrorKind
	}
}

// releaseActive frees the exclusivity slot held by t.
func (s *MemoryStore) releaseActive(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(t)
	if s.active[key] == t.ID {
		delete(s.active, key)
	}
}

// RequestCancel implements Store.
func (s *MemoryStore) RequestCancel(id string) (*Task, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	switch rec.task.State {
	case StatePending:
		s.finishLocked(rec, Outcome{State: StateCancelled})
		out := rec.task.Clone()
		rec.mu.Unlock()
		s.releaseActive(out)
		return out, nil
	case StateRunning:
		rec.cancelRequested = true
		out := rec.task.Clone()
		rec.mu.Unlock()
		return out, nil
	default:
		state := rec.task.State
		rec.mu.Unlock()
		return nil, fmt.Errorf("%w: task already %s", ErrInvalidTransition, state)
	}
}

// CancelRequested implements Store.
func (s *MemoryStore) CancelRequested(id string) bool {
	rec, err := s.record(id)
	if err != nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.cancelRequested
}

// Remove deletes a task and its index entries.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *MemoryStore) removeLocked(id string) {
	rec, ok := s.records[id]
	if !ok {
		return
	}
	delete(s.records, id)
	key := keyOf(&rec.task)
	if s.active[key] == id {
		delete(s.active, key)
	}
	if set, ok := s.byCaller[rec.task.CallerID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byCaller, rec.task.CallerID)
		}
	}
}

// Sweep removes terminal tasks finished before cutoff.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		rec.mu.Lock()
		expired := rec.task.State.IsTerminal() && rec.task.FinishedAt != nil && rec.task.FinishedAt.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored tasks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
