// Package capability names the enrichment operations a provider can perform
// and keeps the registry of which provider supports which of them.
package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Name identifies a single enrichment operation.
type Name string

// Known capabilities.
const (
	FetchDatasheet Name = "fetch-datasheet"
	FetchSpecs     Name = "fetch-specs"
	FetchImage     Name = "fetch-image"
	FetchPricing   Name = "fetch-pricing"
)

// All lists every known capability in a stable order.
var All = []Name{FetchDatasheet, FetchSpecs, FetchImage, FetchPricing}

// Valid reports whether n is a known capability.
func (n Name) Valid() bool {
	switch n {
	case FetchDatasheet, FetchSpecs, FetchImage, FetchPricing:
		return true
	}
	return false
}

// Parse converts s to a Name, rejecting unknown values.
func Parse(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return n, nil
}

// Registry maps provider names to the capabilities they support.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]map[Name]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]map[Name]struct{})}
}

// Register adds caps to provider's capability set. Registering a provider
// with no capabilities records it with an empty set.
func (r *Registry) Register(provider string, caps ...Name) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.providers[provider]
	if !ok {
		set = make(map[Name]struct{}, len(caps))
		r.providers[provider] = set
	}
	for _, c := range caps {
		set[c] = struct{}{}
	}
}

// Restrict narrows provider's set to the capabilities present in available.
// It is used after probing, when a statically declared capability turns out
// to be unusable (for instance because credentials are missing).
func (r *Registry) Restrict(provider string, available []Name) {
	keep := make(map[Name]struct{}, len(available))
	for _, c := range available {
		keep[c] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.providers[provider]
	if !ok {
		return
	}
	for c := range set {
		if _, ok := keep[c]; !ok {
			delete(set, c)
		}
	}
}

// Supports reports whether provider supports c.
func (r *Registry) Supports(provider string, c Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[provider][c]
	return ok
}

// CapabilitiesFor returns provider's capabilities sorted by name. Unknown
// providers yield an empty, non-nil slice.
func (r *Registry) CapabilitiesFor(provider string) []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.providers[provider])
}

// Missing returns the members of requested that provider does not support,
// in request order.
func (r *Registry) Missing(provider string, requested []Name) []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.providers[provider]
	var missing []Name
	for _, c := range requested {
		if _, ok := set[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// ProvidersFor returns the providers supporting c, sorted by name.
func (r *Registry) ProvidersFor(c Name) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for p, set := range r.providers {
		if _, ok := set[c]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the whole registry.
func (r *Registry) Snapshot() map[string][]Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]Name, len(r.providers))
	for p, set := range r.providers {
		out[p] = sortedNames(set)
	}
	return out
}

func sortedNames(set map[Name]struct{}) []Name {
	out := make([]Name, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
