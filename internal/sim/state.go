package sim

import (
	"time"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/nav"
	"github.com/AMR-Platform/Interface/internal/perception"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Runtime holds the counters advanced once per executed cycle.
type Runtime struct {
	Sequence uint64
	Battery  float64
}

// State is the single authoritative simulation state. Only the engine
// touches it, and only while holding the engine lock.
type State struct {
	Grid     *world.Grid
	Pose     kinematics.Pose
	Follower *nav.Follower
	Runtime  Runtime
	SimTime  time.Duration

	Scan      perception.Scan
	Commanded nav.Velocity
	Effective nav.Velocity
	Collision bool
}
