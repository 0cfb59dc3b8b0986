// ABOUTME: Lifecycle tests covering listener wiring, serving, and shutdown.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		ConfigPath: filepath.Join(dir, "config.yaml"),
		DataDir:    dir,
		LogDir:     dir,
		DBPath:     filepath.Join(dir, "examload.db"),
		APIListen:  "127.0.0.1:0",
		AgeKeyPath: filepath.Join(dir, "age.key"),
		GitWorkDir: filepath.Join(dir, "repos"),
		TestMode:   true,
		Targets: map[string]config.Target{
			"staging": {
				URL:             "http://lms.local:8080",
				Local:           true,
				CleanupEnabled:  true,
				UsernamePattern: "student{i}",
				PasswordPattern: "pass{i}",
				AdminUsername:   "admin",
				AdminPassword:   "admin-secret",
			},
		},
	}
}

func TestServiceServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsListen = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())

	store, err := db.Open(cfg.DBPath)
	require.NoError(t, err)

	service, err := NewService(cfg, store, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.FileExists(t, cfg.AgeKeyPath)

	apiAddr := service.apiListener.Addr().String()
	metricsAddr := service.metricsListener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Serve(ctx) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(fmt.Sprintf("http://%s/healthz", apiAddr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := client.Get(fmt.Sprintf("http://%s/v1/status", apiAddr))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := client.Get(fmt.Sprintf("http://%s/metrics", metricsAddr))
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "examload_queue_depth")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestRunRefusesWorldReadableConfig(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on Windows")
	}
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.ConfigPath, []byte("api_listen: 127.0.0.1:0\n"), 0o600))
	require.NoError(t, os.Chmod(cfg.ConfigPath, 0o644))

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accessible by others")
	assert.NoFileExists(t, cfg.DBPath)
}

func TestRunRequiresValidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Targets = nil

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one target")
}
