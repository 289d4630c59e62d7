package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/observability"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/world"
	"github.com/AMR-Platform/Interface/logging"
)

func newScheduler(t *testing.T) *sim.Scheduler {
	t.Helper()
	grid, err := world.Generate(world.DefaultLayout())
	require.NoError(t, err)
	engine, err := sim.NewEngine(grid, sim.DefaultConfig(), sim.Deps{})
	require.NoError(t, err)
	return sim.NewScheduler(engine, sim.SchedulerConfig{}, sim.Deps{})
}

func TestHealth(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "ok", resp.Body.String())
}

func TestDiagnosticsReportsSchedulerAndHub(t *testing.T) {
	scheduler := newScheduler(t)
	h := hub.New(hub.Config{})
	h.SetListener(scheduler)
	h.Attach("observer", "")
	scheduler.Enqueue(sim.Command{Type: sim.CommandGoal, Goal: &sim.GoalCommand{X: 3, Y: 2}})
	metrics := &logging.Metrics{}
	metrics.TelemetryAdd("sim_ticks_total", 3)

	handler := NewHTTPHandler(HTTPHandlerConfig{Scheduler: scheduler, Hub: h, Metrics: metrics})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	var report Diagnostics
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	require.Equal(t, "ok", report.Status)
	require.Equal(t, "active", report.Scheduler)
	require.Equal(t, 1, report.Observers)
	require.Equal(t, 1, report.PendingCmds)
	require.Equal(t, 10, report.TickRate)
	require.Equal(t, "auto", report.Mode)
	require.Equal(t, uint64(3), report.Telemetry["sim_ticks_total"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/world/reset", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	handler := NewHTTPHandler(HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)

	handler = NewHTTPHandler(HTTPHandlerConfig{Observability: observability.Config{EnablePprof: true}})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
}
