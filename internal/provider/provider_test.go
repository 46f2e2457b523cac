package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticInvoker(data map[string]any) Invoker {
	return func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error) {
		return Artifact{Data: data}, nil
	}
}

func TestProviderInvoke(t *testing.T) {
	p := New("acme", Table{
		capability.FetchDatasheet: staticInvoker(map[string]any{"url": "https://acme.test/ds.pdf"}),
	})

	a, err := p.Invoke(context.Background(), capability.FetchDatasheet, "P-100", nil)
	require.NoError(t, err)
	assert.Equal(t, capability.FetchDatasheet, a.Capability)
	assert.Equal(t, "acme", a.Provider)
	assert.False(t, a.FetchedAt.IsZero())
	assert.Equal(t, "https://acme.test/ds.pdf", a.Data["url"])

	_, err = p.Invoke(context.Background(), capability.FetchPricing, "P-100", nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNewCopiesTable(t *testing.T) {
	table := Table{capability.FetchImage: staticInvoker(nil)}
	p := New("acme", table)
	table[capability.FetchSpecs] = staticInvoker(nil)

	assert.Equal(t, []capability.Name{capability.FetchImage}, p.Capabilities())
}

func TestSetProbe(t *testing.T) {
	acme := New("acme", Table{
		capability.FetchDatasheet: staticInvoker(nil),
		capability.FetchImage:     staticInvoker(nil),
	})
	bolt := New("bolt", Table{capability.FetchImage: staticInvoker(nil)})
	set := NewSet(acme, bolt)

	reg := capability.NewRegistry()
	// Declared statically with more than the adapter can serve.
	reg.Register("bolt", capability.FetchImage, capability.FetchPricing)
	// Declared with no adapter configured at all.
	reg.Register("mouser", capability.FetchDatasheet)

	set.Probe(reg)

	assert.Empty(t, reg.CapabilitiesFor("mouser"))
	assert.False(t, reg.Supports("mouser", capability.FetchDatasheet))
	assert.Equal(t, []string{"acme"}, reg.ProvidersFor(capability.FetchDatasheet))

	assert.Equal(t, []capability.Name{capability.FetchDatasheet, capability.FetchImage}, reg.CapabilitiesFor("acme"))
	assert.Equal(t, []capability.Name{capability.FetchImage}, reg.CapabilitiesFor("bolt"))
	assert.Equal(t, []string{"acme", "bolt"}, set.Names())

	got, ok := set.Lookup("acme")
	require.True(t, ok)
	assert.Same(t, acme, got)
	_, ok = set.Lookup("nope")
	assert.False(t, ok)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
		kind string
	}{
		{"nil", nil, false, ""},
		{"not found", fmt.Errorf("acme: %w", ErrNotFound), false, "not_found"},
		{"unauthorized", ErrUnauthorized, false, "unauthorized"},
		{"malformed", ErrMalformedSubject, false, "malformed_subject"},
		{"unsupported", ErrUnsupported, false, "unsupported"},
		{"transient", fmt.Errorf("503: %w", ErrTransient), true, "transient"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"wrapped deadline", fmt.Errorf("acme: %w", context.DeadlineExceeded), true, "timeout"},
		{"canceled", context.Canceled, false, "provider"},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true, "timeout"},
		{"unknown", errors.New("boom"), false, "provider"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
			assert.Equal(t, tc.kind, Kind(tc.err))
		})
	}
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]Artifact
}

func (c *mapCache) Get(key string) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.items[key]
	return a, ok
}

func (c *mapCache) Set(key string, a Artifact, cost int64, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = a
	return true
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := New("acme", Table{
		capability.FetchSpecs: func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error) {
			calls.Add(1)
			<-release
			return Artifact{Data: map[string]any{"subject": subjectID}}, nil
		},
	})
	cache := &mapCache{items: map[string]Artifact{}}
	cp := Cached(p, cache, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := cp.Invoke(context.Background(), capability.FetchSpecs, "P-100", nil)
			assert.NoError(t, err)
			assert.Equal(t, "P-100", a.Data["subject"])
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err := cp.Invoke(context.Background(), capability.FetchSpecs, "P-100", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "acme", cp.Name())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int32
	p := New("acme", Table{
		capability.FetchImage: func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error) {
			calls.Add(1)
			return Artifact{}, ErrTransient
		},
	})
	cp := Cached(p, &mapCache{items: map[string]Artifact{}}, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cp.Invoke(context.Background(), capability.FetchImage, "P-1", nil)
		assert.ErrorIs(t, err, ErrTransient)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedKeepsFetchTime(t *testing.T) {
	p := New("acme", Table{capability.FetchImage: staticInvoker(map[string]any{"url": "a.png"})})
	cp := Cached(p, &mapCache{items: map[string]Artifact{}}, time.Minute)

	first, err := cp.Invoke(context.Background(), capability.FetchImage, "P-100", nil)
	require.NoError(t, err)
	require.False(t, first.FetchedAt.IsZero())

	time.Sleep(5 * time.Millisecond)
	hit, err := cp.Invoke(context.Background(), capability.FetchImage, "P-100", nil)
	require.NoError(t, err)
	assert.Equal(t, first.FetchedAt, hit.FetchedAt)
	assert.Equal(t, "acme", hit.Provider)
	assert.Equal(t, capability.FetchImage, hit.Capability)
}

func TestCachedCallerCancelDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := New("acme", Table{
		capability.FetchSpecs: func(ctx context.Context, subjectID string, params map[string]any) (Artifact, error) {
			close(started)
			select {
			case <-release:
				return Artifact{Data: map[string]any{"subject": subjectID}}, nil
			case <-ctx.Done():
				return Artifact{}, ctx.Err()
			}
		},
	})
	cp := Cached(p, &mapCache{items: map[string]Artifact{}}, time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cp.Invoke(firstCtx, capability.FetchSpecs, "P-100", nil)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		a, err := cp.Invoke(context.Background(), capability.FetchSpecs, "P-100", nil)
		if err == nil && a.Data["subject"] != "P-100" {
			err = fmt.Errorf("unexpected artifact %v", a.Data)
		}
		second <- err
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.NoError(t, <-second)
}
