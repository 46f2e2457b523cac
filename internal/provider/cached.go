package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"golang.org/x/sync/singleflight"
)

// ArtifactCache stores artifacts between tasks.
type ArtifactCache interface {
	Get(key string) (Artifact, bool)
	Set(key string, a Artifact, cost int64, ttl time.Duration) bool
}

// Cached wraps p so successful artifacts are served from cache for ttl and
// concurrent identical fetches share one upstream call. Errors are never
// cached. Cached artifacts keep the provider, capability and fetch time of
// the call that produced them.
func Cached(p *Provider, cache ArtifactCache, ttl time.Duration) *Provider {
	var group singleflight.Group
	table := make(Table, len(p.table))

	for c, fn := range p.table {
		c, fn := c, fn
		table[c] = func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error) {
			key := cacheKey(p.name, c, subjectID)
			if a, ok := cache.Get(key); ok {
				return a, nil
			}

			// The shared fetch is detached from any one caller so a caller
			// giving up does not fail the others waiting on the same key.
			ch := group.DoChan(key, func() (any, error) {
				fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout(ctx))
				defer cancel()

				a, err := fn(fetchCtx, subjectID, params)
				if err != nil {
					return Artifact{}, err
				}
				a = stamp(a, p.name, c)
				cache.Set(key, a, artifactCost(a), ttl)
				return a, nil
			})

			select {
			case res := <-ch:
				if res.Err != nil {
					return Artifact{}, res.Err
				}
				return res.Val.(Artifact), nil
			case <-ctx.Done():
				return Artifact{}, ctx.Err()
			}
		}
	}
	return &Provider{name: p.name, table: table}
}

// defaultSharedFetchTimeout bounds a shared fetch whose first caller had no
// deadline.
const defaultSharedFetchTimeout = time.Minute

// sharedFetchTimeout keeps the first caller's remaining time as the bound
// for the detached fetch.
func sharedFetchTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return max(time.Until(deadline), 0)
	}
	return defaultSharedFetchTimeout
}

func stamp(a Artifact, provider string, c capability.Name) Artifact {
	if a.Provider == "" {
		a.Provider = provider
	}
	if a.Capability == "" {
		a.Capability = c
	}
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now().UTC()
	}
	return a
}

func cacheKey(provider string, c capability.Name, subjectID string) string {
	return provider + "|" + string(c) + "|" + subjectID
}

// artifactCost approximates the artifact's memory footprint by its JSON size.
func artifactCost(a Artifact) int64 {
	b, err := json.Marshal(a.Data)
	if err != nil || len(b) == 0 {
		return 1
	}
	return int64(len(b))
}
