// Package part holds the inventory part records that enrichment results are
// merged into. Only the enrichment slice of a part is modelled here; the rest
// of the record belongs to the inventory CRUD layer.
package part

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a part ID.
var ErrNotFound = errors.New("part not found")

// Record is the enrichment view of a part.
type Record struct {
	ID string `json:"id"`
	// Enrichment maps capability names to the latest artifact for each.
	Enrichment   map[string]any `json:"enrichment"`
	LastTaskID   string         `json:"last_task_id"`
	LastProvider string         `json:"last_provider"`
	Partial      bool           `json:"partial"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Enrichment is the outcome of one task, ready to merge.
type Enrichment struct {
	TaskID    string
	Provider  string
	Artifacts map[string]any
	// Partial is set when a later capability failed after these succeeded.
	Partial bool
}

// Store persists part enrichment.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	// MergeEnrichment upserts the record for id, overwriting artifacts for
	// the capabilities in e and leaving the others untouched.
	MergeEnrichment(ctx context.Context, id string, e Enrichment) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

// MergeEnrichment implements Store.
func (s *MemoryStore) MergeEnrichment(_ context.Context, id string, e Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		r = &Record{ID: id, Enrichment: make(map[string]any)}
		s.records[id] = r
	}
	for k, v := range e.Artifacts {
		r.Enrichment[k] = v
	}
	r.LastTaskID = e.TaskID
	r.LastProvider = e.Provider
	r.Partial = e.Partial
	r.UpdatedAt = s.now().UTC()
	return nil
}

func (r *Record) clone() *Record {
	c := *r
	c.Enrichment = make(map[string]any, len(r.Enrichment))
	for k, v := range r.Enrichment {
		c.Enrichment[k] = v
	}
	return &c
}
