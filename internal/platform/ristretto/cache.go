// Package ristretto caches provider artifacts in process memory using
// dgraph-io/ristretto, bounded by the artifacts' approximate byte size.
package ristretto

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/phrazzld/stockroom/internal/provider"
)

// ArtifactCache is a provider.ArtifactCache backed by ristretto.
type ArtifactCache struct {
	c *ristretto.Cache[string, provider.Artifact]
}

var _ provider.ArtifactCache = (*ArtifactCache)(nil)

// New creates an ArtifactCache holding at most maxCostBytes of artifacts.
func New(maxCostBytes int64) (*ArtifactCache, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxCostBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, provider.Artifact]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}
	return &ArtifactCache{c: c}, nil
}

// Get returns the cached artifact for key.
func (c *ArtifactCache) Get(key string) (provider.Artifact, bool) {
	return c.c.Get(key)
}

// Set stores a with the given cost and TTL. Admission is asynchronous and
// may be refused by the cache policy.
func (c *ArtifactCache) Set(key string, a provider.Artifact, cost int64, ttl time.Duration) bool {
	return c.c.SetWithTTL(key, a, cost, ttl)
}

// Delete removes key.
func (c *ArtifactCache) Delete(key string) {
	c.c.Del(key)
}

// Wait blocks until buffered writes are applied.
func (c *ArtifactCache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *ArtifactCache) Close() {
	c.c.Close()
}
