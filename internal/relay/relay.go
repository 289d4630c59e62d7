// Package relay turns the robot's effective twist into single-letter motion
// tokens and sends them to the actuator bridge over UDP.
package relay

import (
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/telemetry"
)

// Motion tokens understood by the actuator firmware.
const (
	TokenForward  = "F"
	TokenBackward = "B"
	TokenLeft     = "L"
	TokenRight    = "R"
	TokenStop     = "S"
)

// Config controls token classification and the destination address.
type Config struct {
	Address string `yaml:"address"`
	// Deadband is the linear speed (m/s) below which translation is ignored.
	Deadband float64 `yaml:"deadband"`
	// AngularDeadband is the yaw rate (rad/s) below which rotation is ignored.
	AngularDeadband float64 `yaml:"angularDeadband"`
	// LinearScale and AngularScale normalise the two axes when both exceed
	// their deadbands; the larger normalised magnitude wins.
	LinearScale  float64       `yaml:"linearScale"`
	AngularScale float64       `yaml:"angularScale"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

func DefaultConfig() Config {
	return Config{
		Deadband:        0.05,
		AngularDeadband: 0.1,
		LinearScale:     0.5,
		AngularScale:    1.2,
		WriteTimeout:    50 * time.Millisecond,
	}
}

// Token classifies (v, w) into a motion token.
func (c Config) Token(v, w float64) string {
	moving := math.Abs(v) >= c.Deadband
	turning := math.Abs(w) >= c.AngularDeadband
	switch {
	case !moving && !turning:
		return TokenStop
	case moving && turning:
		if math.Abs(w)/scale(c.AngularScale) > math.Abs(v)/scale(c.LinearScale) {
			return turnToken(w)
		}
		return driveToken(v)
	case moving:
		return driveToken(v)
	default:
		return turnToken(w)
	}
}

func scale(s float64) float64 {
	if s <= 0 {
		return 1
	}
	return s
}

func driveToken(v float64) string {
	if v < 0 {
		return TokenBackward
	}
	return TokenForward
}

func turnToken(w float64) string {
	if w < 0 {
		return TokenRight
	}
	return TokenLeft
}

// Relay sends a token whenever it differs from the last one delivered.
type Relay struct {
	cfg     Config
	conn    net.Conn
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu   sync.Mutex
	last string
	// halted is set once an active period ends; results from that period
	// or any earlier one are ignored afterwards.
	halted        bool
	haltedSession uint64
}

// Dial opens the UDP socket toward cfg.Address.
func Dial(cfg Config, logger telemetry.Logger, metrics telemetry.Metrics) (*Relay, error) {
	conn, err := net.Dial("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", cfg.Address, err)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 50 * time.Millisecond
	}
	return &Relay{
		cfg:     cfg,
		conn:    conn,
		logger:  telemetry.LoggerOrDiscard(logger),
		metrics: telemetry.OrNop(metrics),
	}, nil
}

// Observe is a scheduler AfterStep hook.
func (r *Relay) Observe(result sim.StepResult) {
	eff := result.Snapshot.Effective
	token := r.cfg.Token(eff.Linear, eff.Angular)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted && result.Session <= r.haltedSession {
		return
	}
	r.sendLocked(token)
}

// Halt is a scheduler OnIdle hook. It sends a stop token and ignores late
// results from the period that just ended.
func (r *Relay) Halt(ev sim.IdleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted = true
	r.haltedSession = ev.Session
	r.sendLocked(TokenStop)
}

// Send delivers token unless it repeats the last delivered one. Failures are
// logged and retried on the next call.
func (r *Relay) Send(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendLocked(token)
}

func (r *Relay) sendLocked(token string) {
	if token == r.last {
		return
	}
	if err := r.writeLocked(token); err != nil {
		r.logger.Printf("[relay] send %s failed: %v", token, err)
		return
	}
	r.last = token
}

// Last returns the most recently delivered token.
func (r *Relay) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Relay) writeLocked(token string) error {
	r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if _, err := r.conn.Write([]byte(token + "\n")); err != nil {
		return err
	}
	r.metrics.Add(telemetry.MetricRelaySentTotal, 1)
	return nil
}

// Close sends a final stop token and releases the socket.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeLocked(TokenStop); err != nil {
		r.logger.Printf("[relay] final stop failed: %v", err)
	}
	r.last = TokenStop
	return r.conn.Close()
}
