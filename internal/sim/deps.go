package sim

import (
	"github.com/AMR-Platform/Interface/internal/telemetry"
	"github.com/AMR-Platform/Interface/logging"
)

// Deps carries the infrastructure shared by the engine and scheduler.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
}

func (d Deps) withDefaults() Deps {
	d.Logger = telemetry.LoggerOrDiscard(d.Logger)
	d.Metrics = telemetry.OrNop(d.Metrics)
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	return d
}

var robotRef = logging.EntityRef{ID: "robot", Kind: logging.EntityKindRobot}
