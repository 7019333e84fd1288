package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/task"
)

func newTestServer(t *testing.T) (*Server, *container.Registry, *task.Controller) {
	t.Helper()
	regBus := eventbus.New[container.Entry]()
	reg := container.New(regBus)
	reg.Start()
	t.Cleanup(reg.Close)

	taskBus := eventbus.New[task.Task]()
	ctl := task.New(reg, taskBus)
	ctl.Start()
	t.Cleanup(ctl.Close)

	return New(reg, ctl), reg, ctl
}

func TestPodsListsRegistryEntries(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	reg.Insert(container.Entry{Path: "/a.log", ContainerName: "web"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pods", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var entries []container.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "web", entries[0].ContainerName)
}

func TestPodByContainerNameMatch(t *testing.T) {
	srv, reg, _ := newTestServer(t)
	reg.Insert(container.Entry{Path: "/a.log", ContainerName: "web"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pod/web", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var entry container.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, "web", entry.ContainerName)
}

func TestPodByContainerNameMissReturnsEmptyObject(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pod/missing", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "{}", rr.Body.String())
}

func TestTasksListsRecordedTasks(t *testing.T) {
	srv, _, ctl := newTestServer(t)
	ctl.Run(task.Task{Namespace: "default", PodName: "web"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var tasks []task.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
}

func TestResponseCarriesRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pods", nil)
	srv.Handler().ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestHealthzReflectsComponentHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	metrics.RegisterComponent("registry", true, "")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var health metrics.HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestReadyReflectsCriticalComponents(t *testing.T) {
	srv, _, _ := newTestServer(t)
	metrics.RegisterComponent("registry", true, "")
	metrics.RegisterComponent("watcher", true, "")
	metrics.RegisterComponent("controlplane", true, "")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var readiness metrics.HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &readiness))
	assert.Equal(t, "ready", readiness.Status)
}

func TestLiveAlwaysReturnsAlive(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
}

func TestUnknownPathReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bogus", nil)
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var body notFoundBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "Resource was not found.", body.Reason)
}
