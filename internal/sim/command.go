package sim

import (
	"time"

	"github.com/AMR-Platform/Interface/internal/nav"
)

// CommandType enumerates the external commands the engine accepts.
type CommandType string

const (
	CommandMode     CommandType = "mode"
	CommandVelocity CommandType = "cmd_vel"
	CommandGoal     CommandType = "goal"
)

// ModeCommand switches between AUTO and MANUAL.
type ModeCommand struct {
	Mode nav.Mode `json:"mode"`
}

// VelocityCommand is the manual twist. Both components travel together.
type VelocityCommand struct {
	Linear  float64 `json:"v"`
	Angular float64 `json:"w"`
}

// GoalCommand sets a navigation target in metres.
type GoalCommand struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Command is an external intent staged for the next cycle boundary.
type Command struct {
	OriginID string           `json:"originId"`
	Type     CommandType      `json:"type"`
	IssuedAt time.Time        `json:"issuedAt"`
	Mode     *ModeCommand     `json:"mode,omitempty"`
	Velocity *VelocityCommand `json:"velocity,omitempty"`
	Goal     *GoalCommand     `json:"goal,omitempty"`
}
