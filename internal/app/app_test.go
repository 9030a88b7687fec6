package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/approval"
	"gate-service/internal/config"
	"gate-service/internal/notify"
	"gate-service/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database = config.Database{Driver: "sqlite", DSN: ":memory:"}
	cfg.Registry.Path = filepath.Join(dir, "users.json")
	cfg.Approval.Path = filepath.Join(dir, "izin.json")
	cfg.Camera.Source = "dir"
	cfg.Camera.Dir = t.TempDir()
	return cfg
}

func TestNewWithFileBackends(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, isFile := a.Approvals.(*approval.FileStore)
	assert.True(t, isFile)
	assert.Equal(t, 2, a.Events.Len(), "recorder and websocket hub")
	require.NotNil(t, a.EventQueue)

	w := httptest.NewRecorder()
	a.Router(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.Router(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNewWithDatabaseAndRedisBackends(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Registry.Backend = config.BackendDatabase
	cfg.Approval.Backend = config.BackendRedis
	cfg.Redis.Addr = srv.Addr()

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, isRepo := a.Owners.(*repository.GateRepository)
	assert.True(t, isRepo)
	_, isRedis := a.Approvals.(*approval.RedisStore)
	assert.True(t, isRedis)

	require.NoError(t, a.Approvals.MarkPending(context.Background(), "B1234AB"))
	assert.True(t, srv.Exists(cfg.Redis.Prefix+"B1234AB"))
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Approval.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestPipelineRunsToEndOfDirectory(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	p, machine, err := a.Pipeline()
	require.NoError(t, err)
	require.NotNil(t, machine)
	assert.NoError(t, p.Run(context.Background()))
	assert.Empty(t, machine.Snapshot())
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(config.Camera{Source: "snapshot"})
	assert.Error(t, err)

	_, err = NewSource(config.Camera{Source: "rtsp"})
	assert.Error(t, err)

	src, err := NewSource(config.Camera{Source: "snapshot", SnapshotURL: "http://cam/picture"})
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(config.Notify{Backend: "none"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, notify.Noop{}, sink)

	sink, err = NewSink(config.Notify{Backend: "telegram", TelegramToken: "123:abc"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &notify.TelegramSink{}, sink)

	sink, err = NewSink(config.Notify{Backend: "webhook", WebhookURL: "http://relay"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &notify.WebhookSink{}, sink)

	_, err = NewSink(config.Notify{Backend: "pigeon"}, zerolog.Nop())
	assert.Error(t, err)
}
