package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
)

// Artifact is the output of one capability invocation.
type Artifact struct {
	Capability capability.Name `json:"capability"`
	Provider   string          `json:"provider"`
	Data       map[string]any  `json:"data"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// Invoker performs a single capability for a subject.
type Invoker func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error)

// Table maps capabilities to the functions implementing them.
type Table map[capability.Name]Invoker

// Provider is a named capability table.
type Provider struct {
	name  string
	table Table
}

// New creates a Provider. The table is copied.
func New(name string, table Table) *Provider {
	t := make(Table, len(table))
	for c, fn := range table {
		t[c] = fn
	}
	return &Provider{name: name, table: t}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.name }

// Capabilities returns the capabilities with an Invoker, sorted.
func (p *Provider) Capabilities() []capability.Name {
	out := make([]capability.Name, 0, len(p.table))
	for c := range p.table {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke runs capability c for subjectID. Artifact bookkeeping fields the
// Invoker left empty are filled in.
func (p *Provider) Invoke(
	ctx context.Context,
	c capability.Name,
	subjectID string,
	params map[string]any,
) (Artifact, error) {
	fn, ok := p.table[c]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s does not implement %s", ErrUnsupported, p.name, c)
	}

	a, err := fn(ctx, subjectID, params)
	if err != nil {
		return Artifact{}, err
	}
	return stamp(a, p.name, c), nil
}

// Set is a concurrency-safe collection of providers keyed by name.
type Set struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewSet creates a Set containing ps.
func NewSet(ps ...*Provider) *Set {
	s := &Set{providers: make(map[string]*Provider, len(ps))}
	for _, p := range ps {
		s.providers[p.Name()] = p
	}
	return s
}

// Register adds or replaces p.
func (s *Set) Register(p *Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name()] = p
}

// Lookup returns the provider called name.
func (s *Set) Lookup(name string) (*Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.providers))
	for n := range s.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Probe publishes every provider's implemented capabilities to reg. A
// provider already declared in reg (from a static table) is narrowed to what
// its adapter can actually serve, so a capability that needs a missing
// credential is not advertised. A declared provider with no adapter is
// narrowed to nothing. Undeclared providers are registered as-is.
func (s *Set) Probe(reg *capability.Registry) {
	declared := reg.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name := range declared {
		if _, ok := s.providers[name]; !ok {
			reg.Restrict(name, nil)
		}
	}
	for name, p := range s.providers {
		if _, ok := declared[name]; ok {
			reg.Restrict(name, p.Capabilities())
			continue
		}
		reg.Register(name, p.Capabilities()...)
	}
}
