package daemon

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"git.skarv.dev/infra/gitmirror/internal/history"
	"git.skarv.dev/infra/gitmirror/internal/metrics"
	"git.skarv.dev/infra/gitmirror/internal/mirror"
)

func testConfig() *config.Config {
	return &config.Config{
		Source:      config.SourceConfig{URL: "https://example.test/src.git", Ref: "master", Path: "p"},
		Destination: config.DestinationConfig{URL: "https://example.test/dst.git", Branch: "develop", Path: "p"},
		Commit:      config.CommitConfig{AuthorName: "a", AuthorEmail: "a@b", Message: "m"},
		Daemon:      &config.DaemonConfig{ListenAddr: ":0", MetricsAddr: ":0"},
	}
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	registry := prom.NewRegistry()
	d := &Daemon{
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: registry,
		recorder: metrics.NewPrometheusRecorder(registry),
		debounce: newDebouncer(10 * time.Millisecond),
	}
	d.runEngine = func(context.Context) (*mirror.Result, error) {
		return &mirror.Result{}, nil
	}
	return d
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.secret = []byte("s3cret")
	body := []byte(`{"ref":"refs/heads/master"}`)

	assert.True(t, d.verifySignature(body, sign(d.secret, body)))
	assert.False(t, d.verifySignature(body, sign([]byte("wrong"), body)))
	assert.False(t, d.verifySignature(body, ""))
	assert.False(t, d.verifySignature(body, "sha1=deadbeef"))
}

func TestHandleTriggerRejectsBadSignature(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.secret = []byte("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader("{}"))
	req.Header.Set("X-Hub-Signature-256", "sha256=0000")
	rec := httptest.NewRecorder()
	d.handleTrigger(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleTriggerRunsEngine(t *testing.T) {
	d := newTestDaemon(t, nil)
	var runs atomic.Int32
	d.runEngine = func(context.Context) (*mirror.Result, error) {
		runs.Add(1)
		return &mirror.Result{}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	rec := httptest.NewRecorder()
	d.handleTrigger(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandleTriggerSignedRequest(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.secret = []byte("s3cret")
	var runs atomic.Int32
	d.runEngine = func(context.Context) (*mirror.Result, error) {
		runs.Add(1)
		return &mirror.Result{}, nil
	}

	body := []byte(`{"ref":"refs/heads/master","after":"abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign(d.secret, body))
	rec := httptest.NewRecorder()
	d.handleTrigger(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandleTriggerFiltersRefs(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon.AllowedRefs = []string{"refs/heads/master"}
	d := newTestDaemon(t, cfg)
	var runs atomic.Int32
	d.runEngine = func(context.Context) (*mirror.Result, error) {
		runs.Add(1)
		return &mirror.Result{}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(`{"ref":"refs/heads/feature"}`))
	rec := httptest.NewRecorder()
	d.handleTrigger(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runs.Load(), "filtered ref must not start a run")
}

func TestHandleTriggerMethodNotAllowed(t *testing.T) {
	d := newTestDaemon(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/trigger", nil)
	rec := httptest.NewRecorder()
	d.handleTrigger(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	d := newTestDaemon(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.handleHealthz(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleRuns(t *testing.T) {
	d := newTestDaemon(t, nil)
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	d.store = store

	require.NoError(t, store.RecordRun(context.Background(), history.Run{
		RunID:     "run-1",
		StartedAt: time.Now(),
		Duration:  1500 * time.Millisecond,
		Outcome:   "success",
		CommitSHA: "abc123",
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil)
	rec := httptest.NewRecorder()
	d.handleRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0]["run_id"])
	assert.Equal(t, "abc123", runs[0]["commit_sha"])
	assert.EqualValues(t, 1500, runs[0]["duration_ms"])
}

func TestHandleRunsWithoutStore(t *testing.T) {
	d := newTestDaemon(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	d.handleRuns(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRunsInvalidLimit(t *testing.T) {
	d := newTestDaemon(t, nil)
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	d.store = store

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=bogus", nil)
	rec := httptest.NewRecorder()
	d.handleRuns(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformMirrorSingleFlight(t *testing.T) {
	d := newTestDaemon(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	d.runEngine = func(context.Context) (*mirror.Result, error) {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return &mirror.Result{}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.performMirror(context.Background())
	}()
	<-started

	// Many triggers while a run is in flight collapse into one pending run.
	for i := 0; i < 5; i++ {
		d.performMirror(context.Background())
	}
	close(release)
	wg.Wait()

	assert.EqualValues(t, 2, runs.Load(), "expected the in-flight run plus one queued follow-up")
}

func TestReloadConfig(t *testing.T) {
	d := newTestDaemon(t, nil)

	newCfg := testConfig()
	newCfg.Source.Ref = "release"
	require.NoError(t, d.ReloadConfig(newCfg))
	assert.Equal(t, "release", d.getConfig().Source.Ref)

	bad := testConfig()
	bad.Daemon = nil
	assert.Error(t, d.ReloadConfig(bad))
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	deb := newDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		deb.trigger(func() { calls.Add(1) })
		time.Sleep(time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load(), "a quiet burst must produce exactly one callback")
}

func TestNewRequiresDaemonSection(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon = nil
	_, err := New("config.yaml", cfg, nil)
	assert.Error(t, err)
}
