package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/net/proto"
	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/logging"
	"github.com/AMR-Platform/Interface/logging/lifecycle"
)

const (
	detachClosed    = "closed"
	detachMalformed = "malformed"
)

// session owns one observer connection: the handler goroutine reads, a
// second goroutine writes queued frames.
type session struct {
	id           string
	conn         *websocket.Conn
	observer     *hub.Observer
	queue        CommandQueue
	logger       telemetry.Logger
	publisher    logging.Publisher
	writeTimeout time.Duration
	stop         chan struct{}
}

func (s *session) readLoop() string {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.observer.Done():
				if reason := s.observer.Reason(); reason != "" {
					return reason
				}
			default:
			}
			return detachClosed
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			s.logger.Printf("closing %s after malformed message: %v", s.id, err)
			s.closeWith(websocket.ClosePolicyViolation, "malformed message")
			return detachMalformed
		}
		cmd, err := proto.ClientCommand(msg)
		if err != nil {
			s.ignore(msg.Type, err)
			continue
		}
		cmd.OriginID = s.id
		if ok, reason := s.queue.Enqueue(cmd); !ok {
			s.ignore(msg.Type, errors.New(reason))
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.observer.Done():
			switch s.observer.Reason() {
			case hub.ReasonReplaced:
				s.closeWith(websocket.ClosePolicyViolation, "replaced by a newer connection")
			case hub.ReasonShutdown:
				s.closeWith(websocket.CloseGoingAway, "server shutting down")
			}
			s.conn.Close()
			return
		case frame := <-s.observer.Outbound():
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Printf("write to %s failed: %v", s.id, err)
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
}

func (s *session) ignore(messageType string, err error) {
	lifecycle.CommandIgnored(context.Background(), s.publisher,
		logging.EntityRef{ID: s.id, Kind: logging.EntityKindObserver},
		lifecycle.CommandIgnoredPayload{MessageType: messageType, Reason: err.Error()})
}
