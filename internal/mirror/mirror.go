// Package mirror republishes a compact per-cycle summary to a message broker.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/AMR-Platform/Interface/internal/net/proto"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/telemetry"
)

// Supported backends. An empty backend disables the mirror.
const (
	BackendNone  = ""
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"
)

// ErrUnknownBackend is returned for backends other than mqtt and kafka.
var ErrUnknownBackend = errors.New("unknown mirror backend")

type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	Port           int           `yaml:"port"`
	ClientID       string        `yaml:"clientId"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type Config struct {
	Backend string      `yaml:"backend"`
	Topic   string      `yaml:"topic"`
	Buffer  int         `yaml:"buffer"`
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

func DefaultConfig() Config {
	return Config{
		Topic:  "amr/telemetry",
		Buffer: 32,
		MQTT: MQTTConfig{
			Broker:         "localhost",
			Port:           1883,
			ClientID:       "amrsim",
			ConnectTimeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
	}
}

// Validate checks the backend name and that it has somewhere to publish.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone:
		return nil
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("mirror: mqtt broker is required")
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("mirror: kafka brokers are required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Topic == "" {
		return errors.New("mirror: topic is required")
	}
	return nil
}

// Publisher delivers one payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Connect opens the configured backend. It returns a nil publisher when the
// mirror is disabled.
func Connect(cfg Config) (Publisher, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendMQTT:
		pub, err := connectMQTT(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case BackendKafka:
		return newKafkaPublisher(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// mqttRetryInterval spaces the client's background connect attempts.
var mqttRetryInterval = 5 * time.Second

type mqttPublisher struct {
	client mqtt.Client
}

func connectMQTT(cfg MQTTConfig) (*mqttPublisher, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttRetryInterval)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		// The client keeps retrying in the background until disconnected.
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &mqttPublisher{client: client}, nil
}

func (p *mqttPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return errors.New("mqtt not connected")
	}
	token := p.client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

type kafkaPublisher struct {
	writer *kafkago.Writer
}

func newKafkaPublisher(cfg KafkaConfig) *kafkaPublisher {
	return &kafkaPublisher{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Value: payload,
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// Mirror queues snapshots from the driver and publishes them from its own
// goroutine. A full queue drops the snapshot.
type Mirror struct {
	pub     Publisher
	topic   string
	logger  telemetry.Logger
	metrics telemetry.Metrics

	queue chan sim.Snapshot

	mu      sync.Mutex
	dropped uint64
	failing bool
}

// New wraps pub. Run must be started for anything to be published.
func New(pub Publisher, cfg Config, logger telemetry.Logger, metrics telemetry.Metrics) *Mirror {
	size := cfg.Buffer
	if size <= 0 {
		size = DefaultConfig().Buffer
	}
	return &Mirror{
		pub:     pub,
		topic:   cfg.Topic,
		logger:  telemetry.LoggerOrDiscard(logger),
		metrics: telemetry.OrNop(metrics),
		queue:   make(chan sim.Snapshot, size),
	}
}

// Observe is a scheduler AfterStep hook. It never blocks.
func (m *Mirror) Observe(result sim.StepResult) {
	select {
	case m.queue <- result.Snapshot:
	default:
		m.mu.Lock()
		m.dropped++
		count := m.dropped
		m.mu.Unlock()
		m.metrics.Add(telemetry.MetricMirrorDropTotal, 1)
		if count&(count-1) == 0 {
			m.logger.Printf("[mirror] queue full, dropped %d snapshots", count)
		}
	}
}

// Dropped returns how many snapshots were discarded on a full queue.
func (m *Mirror) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Run publishes queued snapshots until ctx is cancelled, then closes the
// publisher.
func (m *Mirror) Run(ctx context.Context) error {
	defer m.pub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-m.queue:
			m.publish(ctx, snap)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, snap sim.Snapshot) {
	payload, err := json.Marshal(proto.Summary(snap))
	if err != nil {
		m.logger.Printf("[mirror] encode seq %d: %v", snap.Sequence, err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = m.pub.Publish(pubCtx, m.topic, payload)
	if err != nil {
		if !m.failing && ctx.Err() == nil {
			m.logger.Printf("[mirror] publish to %s failed: %v", m.topic, err)
		}
		m.failing = true
		return
	}
	if m.failing {
		m.logger.Printf("[mirror] publish to %s recovered", m.topic)
		m.failing = false
	}
	m.metrics.Add(telemetry.MetricMirrorSentTotal, 1)
}
