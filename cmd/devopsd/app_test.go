package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/telemetry"
)

func TestNewLogger(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig())
	require.NoError(t, err)

	_, err = newLogger(config.LoggingConfig{Level: "debug", Format: "console"}, tel, true)
	assert.NoError(t, err)

	_, err = newLogger(config.LoggingConfig{Level: "trace", Format: "json", OTEL: true}, tel, false)
	assert.NoError(t, err)

	_, err = newLogger(config.LoggingConfig{Level: "loud", Format: "json"}, tel, false)
	assert.Error(t, err)
}

func TestInitDependencies_EmbeddedNATS(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.NATS.Enabled = true
	cfg.NATS.Embedded = true

	deps, err := initDependencies(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	require.NotNil(t, deps.nats)
	assert.True(t, deps.nats.IsConnected())
	assert.Len(t, deps.observers, 1)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	t.Setenv("DEVOPSD_SERVER_HTTP_PORT", strconv.Itoa(port))
	t.Setenv("DEVOPSD_SECRETS_ENABLED", "false")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, options{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}
