//go:build e2e

// Package e2e_test exercises a running recipe extractor over HTTP.
//
// Set E2E_BASE_URL to point at the server (default http://localhost:8080).
// Tests that spend upstream quota only run when E2E_VIDEO_ID is set.
package e2e_test

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	httpTimeout     = 90 * time.Second
	appReadyTimeout = 60 * time.Second
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func baseURL() string { return getenv("E2E_BASE_URL", "http://localhost:8080") }

// waitForAppReady polls /healthz until it answers 200 or the deadline passes.
func waitForAppReady(t *testing.T, client *http.Client, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("app not ready at %s after %s", baseURL(), within)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
