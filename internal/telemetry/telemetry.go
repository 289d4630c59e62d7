// Package telemetry defines the narrow logging and metrics surfaces the
// simulator components depend on.
package telemetry

import (
	"log"

	"github.com/AMR-Platform/Interface/logging"
)

// Metric keys reported by the simulator.
const (
	MetricTicksTotal          = "sim_ticks_total"
	MetricTickDurationMillis  = "sim_tick_duration_ms"
	MetricTickOverrunTotal    = "sim_tick_budget_overrun_total"
	MetricObservers           = "hub_observers"
	MetricBroadcastDropTotal  = "hub_broadcast_drop_total"
	MetricCommandAcceptTotal  = "sim_command_accept_total"
	MetricCommandRejectTotal  = "sim_command_reject_total"
	MetricReplanTotal         = "nav_replan_total"
	MetricMotionRejectedTotal = "kinematics_motion_rejected_total"
	MetricRelaySentTotal      = "relay_sent_total"
	MetricBridgeWriteTotal    = "bridge_serial_write_total"
	MetricBridgeReconnects    = "bridge_serial_reconnect_total"
	MetricMirrorDropTotal     = "mirror_drop_total"
	MetricMirrorSentTotal     = "mirror_sent_total"
)

// Logger is the printf-style logger used for operator-facing messages.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts a function into a Logger.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger returns a Logger backed by logger. A nil logger discards output.
func WrapLogger(logger *log.Logger) Logger {
	return stdLogger{logger: logger}
}

type stdLogger struct {
	logger *log.Logger
}

func (l stdLogger) Printf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics accepts counter increments and gauge updates.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics exposes the router's metric set through the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	if metrics == nil {
		return NopMetrics{}
	}
	return routerMetrics{metrics: metrics}
}

type routerMetrics struct {
	metrics *logging.Metrics
}

func (m routerMetrics) Add(key string, delta uint64)   { m.metrics.TelemetryAdd(key, delta) }
func (m routerMetrics) Store(key string, value uint64) { m.metrics.TelemetryStore(key, value) }

// NopMetrics discards every update.
type NopMetrics struct{}

func (NopMetrics) Add(string, uint64)   {}
func (NopMetrics) Store(string, uint64) {}

// OrNop returns m, or NopMetrics when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}

// LoggerOrDiscard returns l, or a Logger that drops everything when l is nil.
func LoggerOrDiscard(l Logger) Logger {
	if l == nil {
		return LoggerFunc(func(string, ...any) {})
	}
	return l
}
