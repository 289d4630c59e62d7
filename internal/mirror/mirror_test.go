package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AMR-Platform/Interface/internal/sim"
)

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	closed   bool
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func TestValidateBackends(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Backend = BackendMQTT
	require.NoError(t, cfg.Validate())
	cfg.Backend = BackendKafka
	require.NoError(t, cfg.Validate())

	cfg.Backend = "amqp"
	require.ErrorIs(t, cfg.Validate(), ErrUnknownBackend)

	_, err := Connect(cfg)
	require.ErrorIs(t, err, ErrUnknownBackend)

	cfg.Backend = BackendNone
	pub, err := Connect(cfg)
	require.NoError(t, err)
	require.Nil(t, pub)
}

func TestMirrorPublishesSummaries(t *testing.T) {
	pub := &recordingPublisher{}
	m := New(pub, DefaultConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for seq := uint64(1); seq <= 3; seq++ {
		m.Observe(sim.StepResult{Tick: seq, Snapshot: sim.Snapshot{Sequence: seq, Time: time.Unix(0, 0)}})
	}
	require.Eventually(t, func() bool { return pub.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.True(t, pub.closed)
	require.Equal(t, "amr/telemetry", pub.topics[0])
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[2], &decoded))
	require.EqualValues(t, 3, decoded["seq"])
	require.NotContains(t, decoded, "grid")
}

func TestMirrorDropsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer = 2
	m := New(&recordingPublisher{}, cfg, nil, nil)
	for i := 0; i < 5; i++ {
		m.Observe(sim.StepResult{})
	}
	require.EqualValues(t, 3, m.Dropped())
}

func TestMirrorSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := New(pub, DefaultConfig(), nil, nil)
	m.publish(context.Background(), sim.Snapshot{Sequence: 1})
	require.True(t, m.failing)

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	m.publish(context.Background(), sim.Snapshot{Sequence: 2})
	require.False(t, m.failing)
	require.Equal(t, 1, pub.count())
}

// refusingBroker accepts TCP connections and hangs up straight away, so an
// MQTT client never completes its handshake.
func refusingBroker(t *testing.T) (MQTTConfig, *atomic.Int64) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var attempts atomic.Int64
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			conn.Close()
		}
	}()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)
	return MQTTConfig{Broker: host, Port: portNum, ClientID: "mirror-test", ConnectTimeout: 200 * time.Millisecond}, &attempts
}

func TestConnectMQTTStopsRetryingAfterTimeout(t *testing.T) {
	prev := mqttRetryInterval
	mqttRetryInterval = 20 * time.Millisecond
	t.Cleanup(func() { mqttRetryInterval = prev })

	mqttCfg, attempts := refusingBroker(t)
	cfg := DefaultConfig()
	cfg.Backend = BackendMQTT
	cfg.MQTT = mqttCfg

	pub, err := Connect(cfg)
	require.Error(t, err)
	require.Nil(t, pub)
	require.Positive(t, attempts.Load(), "client never reached the broker")

	time.Sleep(300 * time.Millisecond)
	settled := attempts.Load()
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, settled, attempts.Load(), "client kept reconnecting after Connect gave up")
}
