// Package net assembles the HTTP surface: the observer websocket, a health
// check and a diagnostics report.
package net

import (
	"encoding/json"
	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/observability"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/logging"
)

type HTTPHandlerConfig struct {
	Scheduler *sim.Scheduler
	Hub       *hub.Hub
	WebSocket nethttp.HandlerFunc
	Metrics   *logging.Metrics
	Clock     logging.Clock

	Observability observability.Config
}

// Diagnostics is the /diagnostics report.
type Diagnostics struct {
	Status        string            `json:"status"`
	ServerTime    int64             `json:"serverTime"`
	TickRate      int               `json:"tickRate"`
	Scheduler     string            `json:"scheduler"`
	Observers     int               `json:"observers"`
	Sequence      uint64            `json:"sequence"`
	Battery       float64           `json:"battery"`
	Mode          string            `json:"mode"`
	PendingCmds   int               `json:"pendingCommands"`
	DroppedFrames uint64            `json:"droppedFrames"`
	Telemetry     map[string]uint64 `json:"telemetry,omitempty"`
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if cfg.WebSocket != nil {
		r.Get("/ws", cfg.WebSocket)
	}

	r.Get("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	observability.Mount(r, cfg.Observability)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
			writeJSON(w, diagnostics(cfg))
		})
	})

	return r
}

func diagnostics(cfg HTTPHandlerConfig) Diagnostics {
	report := Diagnostics{
		Status:     "ok",
		ServerTime: cfg.Clock.Now().UnixMilli(),
		Telemetry:  cfg.Metrics.Snapshot(),
	}
	if s := cfg.Scheduler; s != nil {
		snap := s.Engine().Snapshot()
		report.TickRate = s.Engine().TickRate()
		report.Scheduler = s.State().String()
		report.Sequence = snap.Sequence
		report.Battery = snap.Battery
		report.Mode = string(snap.Mode)
		report.PendingCmds = s.Pending()
	}
	if h := cfg.Hub; h != nil {
		report.Observers = h.Count()
		report.DroppedFrames = h.DroppedTotal()
	}
	return report
}

func writeJSON(w nethttp.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
