// Package testutils holds helpers shared by tests across the module:
// integration-test gating on environment variables and an in-memory slog
// handler for asserting on log output.
package testutils

import (
	"os"
	"testing"
)

// Environment variables that enable integration tests against real services.
const (
	EnvTestDatabaseURL = "STOCKROOM_TEST_DATABASE_URL"
	EnvTestRedisURL    = "STOCKROOM_TEST_REDIS_URL"
)

// IntegrationURL returns the value of envVar, skipping the test when it is
// unset so the default test run needs no external services.
func IntegrationURL(t testing.TB, envVar string) string {
	t.Helper()
	url := os.Getenv(envVar)
	if url == "" {
		t.Skipf("%s not set, skipping integration test", envVar)
	}
	return url
}
