package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/storagebench/pkg/engine"
)

func newTestAgent(t *testing.T, path string) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(NewServer(path, logr.Discard(), engine.WithBackend(engine.KindSync)).Handler())
	t.Cleanup(srv.Close)
	return srv, NewClient(strings.TrimPrefix(srv.URL, "http://"))
}

func runConfig(t *testing.T) engine.RunConfig {
	return engine.RunConfig{
		Path:           filepath.Join(t.TempDir(), "area.bin"),
		TestType:       engine.SeqRead,
		FileSizeBytes:  4 << 20,
		BlockSizeBytes: 4096,
		QueueDepth:     2,
		DurationSec:    1,
	}
}

func TestRemoteRun(t *testing.T) {
	srv, c := newTestAgent(t, "")
	res, err := c.Run(context.Background(), runConfig(t))
	require.NoError(t, err)
	assert.Greater(t, res.OpsCompleted, int64(0))
	assert.Len(t, res.Series, 1)
	assert.Equal(t, "sync/buffered", res.EngineLabel)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "storagebench_ops_total")
}

func TestRemotePathOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "agent.bin")
	_, c := newTestAgent(t, override)

	cfg := runConfig(t)
	cfg.Path = "/nonexistent/dir/area.bin"
	_, err := c.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.FileExists(t, override)
}

func TestRemoteInvalidConfig(t *testing.T) {
	_, c := newTestAgent(t, "")
	cfg := runConfig(t)
	cfg.QueueDepth = 0

	res, err := c.Run(context.Background(), cfg)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "400")
}

func TestRemoteFileAccess(t *testing.T) {
	_, c := newTestAgent(t, "")
	cfg := runConfig(t)
	cfg.Path = filepath.Join(t.TempDir(), "missing", "area.bin")

	_, err := c.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, engine.ErrFileAccess)
	assert.Contains(t, err.Error(), "500")
}

func TestHealthAndMethod(t *testing.T) {
	srv, _ := newTestAgent(t, "")
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL+"/run", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoteErrorWithoutBody(t *testing.T) {
	err := remoteError("h:1", "502 Bad Gateway", []byte("upstream down\n"))
	assert.EqualError(t, err, "agent h:1 error (502 Bad Gateway): upstream down")
}
