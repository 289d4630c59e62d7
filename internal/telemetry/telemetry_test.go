package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/AMR-Platform/Interface/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		WrapLogger(nil).Printf("ignored %d", 1)
	})

	t.Run("forwards output", func(t *testing.T) {
		var buf bytes.Buffer
		WrapLogger(log.New(&buf, "", 0)).Printf("tick %d", 3)
		if got := buf.String(); got != "tick 3\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestWrapMetricsAccumulates(t *testing.T) {
	metrics := &logging.Metrics{}
	adapter := WrapMetrics(metrics)

	adapter.Add(MetricTicksTotal, 2)
	adapter.Add(MetricTicksTotal, 3)
	adapter.Store(MetricObservers, 4)

	snapshot := metrics.Snapshot()
	if snapshot[MetricTicksTotal] != 5 {
		t.Fatalf("expected ticks counter 5, got %d", snapshot[MetricTicksTotal])
	}
	if snapshot[MetricObservers] != 4 {
		t.Fatalf("expected observer gauge 4, got %d", snapshot[MetricObservers])
	}
}

func TestNilFallbacks(t *testing.T) {
	WrapMetrics(nil).Add("ignored", 1)
	OrNop(nil).Store("ignored", 1)
	LoggerOrDiscard(nil).Printf("ignored")
}
