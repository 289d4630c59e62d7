// Package bridge forwards motion tokens received over UDP to the actuator
// microcontroller's serial port.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/AMR-Platform/Interface/internal/telemetry"
)

const stopToken = "S"

var validTokens = map[string]struct{}{
	"F": {}, "B": {}, "L": {}, "R": {}, "S": {},
}

// ValidToken reports whether token is one the firmware accepts.
func ValidToken(token string) bool {
	_, ok := validTokens[token]
	return ok
}

// Config describes the listener and the serial device.
type Config struct {
	Listen         string        `yaml:"listen"`
	Port           string        `yaml:"port"`
	Baud           int           `yaml:"baud"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	BackoffInitial time.Duration `yaml:"backoffInitial"`
	BackoffMax     time.Duration `yaml:"backoffMax"`
}

func DefaultConfig() Config {
	return Config{
		Listen:         "0.0.0.0:5005",
		Port:           "/dev/ttyACM0",
		Baud:           9600,
		ReadTimeout:    100 * time.Millisecond,
		BackoffInitial: time.Second,
		BackoffMax:     30 * time.Second,
	}
}

// Port is the subset of a serial port the bridge writes to.
type Port interface {
	io.WriteCloser
}

// Opener opens the serial device.
type Opener func(name string, baud int) (Port, error)

// SerialOpener opens a real serial device.
func SerialOpener(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Bridge owns the UDP socket and the serial port.
type Bridge struct {
	cfg     Config
	open    Opener
	logger  telemetry.Logger
	metrics telemetry.Metrics
	now     func() time.Time

	mu      sync.Mutex
	conn    *net.UDPConn
	port    Port
	backoff time.Duration
	retryAt time.Time
}

// New builds a bridge. A nil opener uses SerialOpener.
func New(cfg Config, open Opener, logger telemetry.Logger, metrics telemetry.Metrics) *Bridge {
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.Baud <= 0 {
		cfg.Baud = def.Baud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if open == nil {
		open = SerialOpener
	}
	return &Bridge{
		cfg:     cfg,
		open:    open,
		logger:  telemetry.LoggerOrDiscard(logger),
		metrics: telemetry.OrNop(metrics),
		now:     time.Now,
	}
}

// Start opens the serial port and binds the UDP listener. Failing to open the
// port here is fatal; later failures are retried.
func (b *Bridge) Start() error {
	port, err := b.open(b.cfg.Port, b.cfg.Baud)
	if err != nil {
		return fmt.Errorf("open serial %s: %w", b.cfg.Port, err)
	}
	addr, err := net.ResolveUDPAddr("udp", b.cfg.Listen)
	if err != nil {
		port.Close()
		return fmt.Errorf("resolve %s: %w", b.cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		port.Close()
		return fmt.Errorf("listen %s: %w", b.cfg.Listen, err)
	}
	b.mu.Lock()
	b.port = port
	b.conn = conn
	b.mu.Unlock()
	b.logger.Printf("[bridge] listening on %s, forwarding to %s @ %d", conn.LocalAddr(), b.cfg.Port, b.cfg.Baud)
	return nil
}

// Addr returns the bound UDP address once Start has succeeded.
func (b *Bridge) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

// Serve forwards datagrams until ctx is cancelled, then stops the robot and
// releases both endpoints.
func (b *Bridge) Serve(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.New("bridge not started")
	}
	defer b.shutdown()

	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				b.tryReconnect()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		token := strings.TrimSpace(string(buf[:n]))
		if !ValidToken(token) {
			b.logger.Printf("[bridge] ignoring invalid token %q from %s", token, from)
			continue
		}
		b.Forward(token)
	}
}

// Run is Start followed by Serve.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(); err != nil {
		return err
	}
	return b.Serve(ctx)
}

// Forward writes token to the serial port. When the port is down the token is
// dropped; a write failure closes the port and schedules a reopen.
func (b *Bridge) Forward(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectLocked()
	if b.port == nil {
		b.logger.Printf("[bridge] serial down, dropping %s", token)
		return
	}
	if _, err := b.port.Write([]byte(token + "\n")); err != nil {
		b.logger.Printf("[bridge] serial write failed: %v", err)
		b.port.Close()
		b.port = nil
		b.scheduleRetryLocked()
		return
	}
	b.metrics.Add(telemetry.MetricBridgeWriteTotal, 1)
}

func (b *Bridge) tryReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectLocked()
}

func (b *Bridge) reconnectLocked() {
	if b.port != nil || b.now().Before(b.retryAt) {
		return
	}
	port, err := b.open(b.cfg.Port, b.cfg.Baud)
	if err != nil {
		b.logger.Printf("[bridge] reopen %s failed: %v (next attempt in %s)", b.cfg.Port, err, b.nextBackoff())
		b.scheduleRetryLocked()
		return
	}
	b.port = port
	b.backoff = 0
	b.metrics.Add(telemetry.MetricBridgeReconnects, 1)
	b.logger.Printf("[bridge] reconnected to %s", b.cfg.Port)
}

func (b *Bridge) nextBackoff() time.Duration {
	if b.backoff == 0 {
		return b.cfg.BackoffInitial
	}
	next := b.backoff * 2
	if next > b.cfg.BackoffMax {
		next = b.cfg.BackoffMax
	}
	return next
}

func (b *Bridge) scheduleRetryLocked() {
	b.backoff = b.nextBackoff()
	b.retryAt = b.now().Add(b.backoff)
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port != nil {
		if _, err := b.port.Write([]byte(stopToken + "\n")); err != nil {
			b.logger.Printf("[bridge] final stop failed: %v", err)
		}
		b.port.Close()
		b.port = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
