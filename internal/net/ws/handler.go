// Package ws serves the observer websocket endpoint.
package ws

import (
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/logging"
)

// CommandQueue accepts decoded observer commands.
type CommandQueue interface {
	Enqueue(cmd sim.Command) (bool, string)
}

type HandlerConfig struct {
	Logger       telemetry.Logger
	Publisher    logging.Publisher
	WriteTimeout time.Duration
	ReadLimit    int64
}

// Handler upgrades observer connections and runs one session per connection.
type Handler struct {
	hub      *hub.Hub
	queue    CommandQueue
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, queue CommandQueue, cfg HandlerConfig) *Handler {
	cfg.Logger = telemetry.LoggerOrDiscard(cfg.Logger)
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	return &Handler{
		hub:   h,
		queue: queue,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle serves /ws. An optional ?id= names the observer; otherwise a random
// id is assigned.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		id = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Printf("upgrade failed for %s: %v", id, err)
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	obs := h.hub.Attach(id, r.RemoteAddr)
	s := &session{
		id:           id,
		conn:         conn,
		observer:     obs,
		queue:        h.queue,
		logger:       h.cfg.Logger,
		publisher:    h.cfg.Publisher,
		writeTimeout: h.cfg.WriteTimeout,
		stop:         make(chan struct{}),
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	reason := s.readLoop()
	close(s.stop)
	<-writerDone
	h.hub.Detach(obs, reason)
	conn.Close()
}
