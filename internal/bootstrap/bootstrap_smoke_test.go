package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partybot-server-go/internal/domain/eventbus/repository"
	platformconfig "partybot-server-go/internal/platform/config"
	platformerrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
)

func testLoader(t *testing.T) *platformconfig.Loader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "log:\n  log_level: INFO\n  log_dir: " + filepath.Join(dir, "logs") + "\n  log_file: test.log\n" +
		"storage:\n  dsn: \":memory:\"\n" +
		"automation:\n  restore_on_boot: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return platformconfig.NewLoader().
		WithDotEnv(false).
		WithPath(path).
		WithEnv(func(string) (string, bool) { return "", false })
}

func TestInitGraphOrder(t *testing.T) {
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"storage:open-database",
		"events:init-bus",
		"accounts:load-registry",
		"epic:init-client",
		"auth:init-token-cache",
		"mirror:init",
		"stream:init-registry",
		"automation:init-engine",
		"taxi:init-manager",
		"events:init-journal",
	}
	steps := InitGraph()
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.ID, "step %d", i)
	}
}

func TestInitGraphDependenciesComeFirst(t *testing.T) {
	seen := map[string]bool{}
	for _, step := range InitGraph() {
		for _, dep := range step.DependsOn {
			assert.True(t, seen[dep], "%s depends on %s which runs later", step.ID, dep)
		}
		seen[step.ID] = true
	}
}

func TestExecuteInitStepsRejectsUnmetDependency(t *testing.T) {
	steps := []initStep{{
		ID:        "b",
		DependsOn: []string{"a"},
		Execute:   func(context.Context, *appState) error { return nil },
	}}
	err := executeInitSteps(context.Background(), steps, &appState{})
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindBootstrap))
}

func TestExecuteInitStepsWrapsWithStepKind(t *testing.T) {
	steps := []initStep{{
		ID:      "storage:broken",
		Kind:    platformerrors.KindStorage,
		Execute: func(context.Context, *appState) error { return errors.New("disk full") },
	}}
	err := executeInitSteps(context.Background(), steps, &appState{})
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindStorage))
}

func TestExecuteInitGraph(t *testing.T) {
	state := &appState{loader: testLoader(t)}
	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))
	defer state.close(context.Background())

	assert.NotNil(t, state.config)
	assert.NotNil(t, state.logProvider)
	assert.NotNil(t, state.observabilityShutdown)
	assert.NotNil(t, state.db)
	assert.NotNil(t, state.accounts)
	assert.NotNil(t, state.tokens)
	assert.NotNil(t, state.streams)
	assert.NotNil(t, state.engine)
	assert.NotNil(t, state.journal)
	assert.Empty(t, state.accounts.List())
}

func TestHTTPHandlerServesControlAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	state := &appState{loader: testLoader(t)}
	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))
	defer state.close(context.Background())
	state.wire()

	handler, err := buildHTTPHandler(context.Background(), state)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"driver":"memory"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/nobody", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "partybot_http_requests_total")

	// plain GET without upgrade headers
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

type countingEventRepo struct {
	repository.EventRepository
	sweeps atomic.Int32
}

func (r *countingEventRepo) DeleteOldEvents(context.Context, time.Time) (int64, error) {
	r.sweeps.Add(1)
	return 0, nil
}

func TestSweepEventsRunsOnceThenStopsOnCancel(t *testing.T) {
	repo := &countingEventRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepEvents(ctx, repo, time.Hour, logging.Nop())
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.sweeps.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweepEvents did not return after cancel")
	}
}
