package sim

import (
	"time"

	"github.com/AMR-Platform/Interface/internal/kinematics"
	"github.com/AMR-Platform/Interface/internal/nav"
	"github.com/AMR-Platform/Interface/internal/perception"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Snapshot is an immutable copy of the state published after a cycle.
type Snapshot struct {
	Sequence  uint64
	SimTime   time.Duration
	Time      time.Time
	Pose      kinematics.Pose
	Battery   float64
	Mode      nav.Mode
	Goal      *world.Point
	Commanded nav.Velocity
	Effective nav.Velocity
	LeftRPM   float64
	RightRPM  float64
	Scan      perception.Scan
	Path      []world.Point
	Collision bool
}

func (s *State) snapshot(now time.Time, drive kinematics.Drive) Snapshot {
	snap := Snapshot{
		Sequence:  s.Runtime.Sequence,
		SimTime:   s.SimTime,
		Time:      now,
		Pose:      s.Pose,
		Battery:   s.Runtime.Battery,
		Mode:      s.Follower.Mode(),
		Commanded: s.Commanded,
		Effective: s.Effective,
		Scan:      s.Scan,
		Path:      s.Follower.Path().Remaining(),
		Collision: s.Collision,
	}
	if goal, ok := s.Follower.Goal(); ok {
		snap.Goal = &goal
	}
	snap.Scan.Ranges = append([]float64(nil), s.Scan.Ranges...)
	snap.LeftRPM, snap.RightRPM = drive.WheelSpeeds(s.Effective.Linear, s.Effective.Angular)
	return snap
}
