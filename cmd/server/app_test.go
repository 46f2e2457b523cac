package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/stockroom/internal/auth"
	"github.com/phrazzld/stockroom/internal/config"
	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "sk_test_operator"

// newUpstream fakes a part distributor serving every resource for P-100.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/parts/P-100/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resource := strings.TrimPrefix(r.URL.Path, "/v1/parts/P-100/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"resource": resource, "part": "P-100"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug"},
		Auth: config.AuthConfig{
			JWTSecret:                 "thisisasecretkeythatis32charslong!!",
			TokenLifetimeMinutes:      60,
			GuestTokenLifetimeMinutes: 30,
			APIKeyDigests:             []string{auth.DigestAPIKey(testAPIKey)},
		},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Store:   "memory",
			Tiers:   []config.TierConfig{{Name: "minute", Limit: 5, Window: time.Minute}},
		},
		Task: config.TaskConfig{
			WorkerCount:    2,
			QueueSize:      8,
			TaskBudget:     5 * time.Second,
			AttemptTimeout: 2 * time.Second,
			MaxAttempts:    2,
			BackoffBase:    10 * time.Millisecond,
			Retention:      time.Hour,
			SweepInterval:  time.Minute,
			ExclusiveTypes: []string{"part_enrichment"},
		},
		Providers: config.ProvidersConfig{
			Distributors: []config.DistributorConfig{
				{Name: "acme", BaseURL: upstreamURL, APIKey: "upstream-key"},
				{Name: "anon", BaseURL: upstreamURL},
			},
		},
		Cache: config.CacheConfig{MaxCostBytes: 1 << 20, TTL: time.Minute},
	}
}

type testServer struct {
	*httptest.Server
	app *application
}

func newTestServer(t *testing.T, overrides ...func(*config.Config)) *testServer {
	t.Helper()
	upstream := newUpstream(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig(upstream.URL)
	for _, o := range overrides {
		o(cfg)
	}
	app, err := newApplication(context.Background(), cfg, logger)
	require.NoError(t, err)
	app.runner.Start()

	srv := httptest.NewServer(app.setupRouter())
	t.Cleanup(func() {
		srv.Close()
		app.runner.Stop()
		app.cleanup()
	})
	return &testServer{Server: srv, app: app}
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var operator = map[string]string{"X-API-Key": testAPIKey}

func TestEnrichmentEndToEnd(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/tasks/quick/part_enrichment", operator, map[string]any{
		"subject_id":   "P-100",
		"provider":     "acme",
		"capabilities": []string{"fetch-datasheet", "fetch-image"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	assert.Equal(t, "pending", created["state"])

	var final task.Task
	require.Eventually(t, func() bool {
		resp := s.do(t, http.MethodGet, "/tasks/"+created["id"], operator, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		final = decode[task.Task](t, resp)
		return final.State.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, task.StateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	assert.Len(t, final.Result.Artifacts, 2)
	assert.Equal(t, "datasheet", final.Result.Artifacts["fetch-datasheet"].Data["resource"])

	resp = s.do(t, http.MethodGet, "/parts/P-100", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[part.Record](t, resp)
	assert.Equal(t, created["id"], rec.LastTaskID)
	assert.Contains(t, rec.Enrichment, "fetch-datasheet")
	assert.Contains(t, rec.Enrichment, "fetch-image")
}

func TestAdmissionRejectsCapabilityWithoutCredentials(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/tasks/quick/part_enrichment", operator, map[string]any{
		"subject_id":   "P-100",
		"provider":     "anon",
		"capabilities": []string{"fetch-datasheet"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	list := s.do(t, http.MethodGet, "/tasks", operator, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Empty(t, decode[map[string][]task.Task](t, list)["tasks"])
}

func TestProvidersReflectProbedCapabilities(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/tasks/capabilities/providers", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]map[string][]string](t, resp)["providers"]
	assert.Equal(t, []string{"fetch-datasheet", "fetch-image", "fetch-pricing", "fetch-specs"}, got["acme"])
	assert.Equal(t, []string{"fetch-image"}, got["anon"])
	assert.Empty(t, got["gemini"])
}

func TestDeclaredProviderWithoutAdapterIsRejectedAtAdmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  mouser: [fetch-datasheet]\n"), 0o600))

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Providers.RegistryFile = path
	})

	resp := s.do(t, http.MethodGet, "/tasks/capabilities/providers", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[map[string]map[string][]string](t, resp)["providers"]["mouser"])

	resp = s.do(t, http.MethodPost, "/tasks/quick/part_enrichment", operator, map[string]any{
		"subject_id":   "P-100",
		"provider":     "mouser",
		"capabilities": []string{"fetch-datasheet"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]any](t, resp)["error"], "mouser")

	list := s.do(t, http.MethodGet, "/tasks", operator, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Empty(t, decode[map[string][]task.Task](t, list)["tasks"])
}

func TestGuestRateLimiting(t *testing.T) {
	s := newTestServer(t)

	login := s.do(t, http.MethodPost, "/auth/guest-login", nil, nil)
	require.Equal(t, http.StatusOK, login.StatusCode)
	token := decode[map[string]string](t, login)["token"]
	guest := map[string]string{"Authorization": "Bearer " + token}

	for i := 0; i < 5; i++ {
		resp := s.do(t, http.MethodGet, "/tasks", guest, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
	}

	resp := s.do(t, http.MethodGet, "/tasks", guest, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "minute", decode[map[string]any](t, resp)["tier"])

	// Bypass paths and exempt callers are unaffected.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil, nil).StatusCode)
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/tasks", operator, nil).StatusCode)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp = s.do(t, http.MethodGet, "/tasks", map[string]string{"X-API-Key": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
