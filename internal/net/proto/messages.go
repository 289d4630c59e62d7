// Package proto defines the observer wire format.
package proto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/AMR-Platform/Interface/internal/nav"
	"github.com/AMR-Platform/Interface/internal/sim"
	"github.com/AMR-Platform/Interface/internal/world"
)

// Client message type identifiers.
const (
	TypeMode     = "mode"
	TypeVelocity = "cmd_vel"
	TypeGoal     = "goal"
)

// TypeTelemetry identifies the per-cycle outbound frame.
const TypeTelemetry = "telemetry"

var (
	// ErrMalformed marks payloads that are not valid JSON objects. The
	// connection that sent one is closed.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType marks well-formed messages with an unsupported type.
	ErrUnknownType = errors.New("unknown message type")
	// ErrIncomplete marks messages missing a required field.
	ErrIncomplete = errors.New("incomplete message")
	// ErrInvalidMode marks mode messages naming an unknown mode.
	ErrInvalidMode = errors.New("invalid mode")
)

// ClientMessage is an inbound observer message. Pointer fields distinguish a
// missing value from zero.
type ClientMessage struct {
	Type string   `json:"type"`
	Mode *string  `json:"mode,omitempty"`
	V    *float64 `json:"v,omitempty"`
	W    *float64 `json:"w,omitempty"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

// DecodeClientMessage parses a raw text frame.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// ClientCommand converts msg into an engine command.
func ClientCommand(msg ClientMessage) (sim.Command, error) {
	switch msg.Type {
	case TypeMode:
		if msg.Mode == nil {
			return sim.Command{}, fmt.Errorf("%w: mode requires \"mode\"", ErrIncomplete)
		}
		mode, err := nav.ParseMode(*msg.Mode)
		if err != nil {
			return sim.Command{}, fmt.Errorf("%w: %v", ErrInvalidMode, err)
		}
		return sim.Command{Type: sim.CommandMode, Mode: &sim.ModeCommand{Mode: mode}}, nil
	case TypeVelocity:
		if msg.V == nil || msg.W == nil {
			return sim.Command{}, fmt.Errorf("%w: cmd_vel requires \"v\" and \"w\"", ErrIncomplete)
		}
		return sim.Command{
			Type:     sim.CommandVelocity,
			Velocity: &sim.VelocityCommand{Linear: *msg.V, Angular: *msg.W},
		}, nil
	case TypeGoal:
		if msg.X == nil || msg.Y == nil {
			return sim.Command{}, fmt.Errorf("%w: goal requires \"x\" and \"y\"", ErrIncomplete)
		}
		return sim.Command{Type: sim.CommandGoal, Goal: &sim.GoalCommand{X: *msg.X, Y: *msg.Y}}, nil
	default:
		return sim.Command{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// PoseMessage carries position in metres and heading in degrees.
type PoseMessage struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// ScanMessage carries beam geometry in degrees and the per-beam ranges.
type ScanMessage struct {
	AngleMin float64   `json:"angle_min"`
	AngleInc float64   `json:"angle_inc"`
	Ranges   []float64 `json:"ranges"`
}

// GridMessage is the static map payload.
type GridMessage struct {
	W    int     `json:"w"`
	H    int     `json:"h"`
	Res  float64 `json:"res"`
	Data string  `json:"data"`
}

// TelemetryFrame is broadcast to every observer once per cycle.
type TelemetryFrame struct {
	Type    string       `json:"type"`
	Seq     uint64       `json:"seq"`
	TS      int64        `json:"ts"`
	Pose    PoseMessage  `json:"pose"`
	Battery float64      `json:"battery"`
	Mode    string       `json:"mode"`
	Goal    *[2]float64  `json:"goal"`
	EncRPM  [2]float64   `json:"enc_rpm"`
	Scan    ScanMessage  `json:"scan"`
	Path    [][2]float64 `json:"path"`
	Grid    GridMessage  `json:"grid"`
}

// FrameEncoder renders snapshots into telemetry frames. The static map is
// base64 encoded once.
type FrameEncoder struct {
	grid GridMessage
}

func NewFrameEncoder(data []byte, width, height int, resolution float64) *FrameEncoder {
	return &FrameEncoder{grid: GridMessage{
		W:    width,
		H:    height,
		Res:  resolution,
		Data: base64.StdEncoding.EncodeToString(data),
	}}
}

// Frame builds the outbound message for snap.
func (e *FrameEncoder) Frame(snap sim.Snapshot) TelemetryFrame {
	frame := TelemetryFrame{
		Type: TypeTelemetry,
		Seq:  snap.Sequence,
		TS:   snap.Time.UnixMilli(),
		Pose: PoseMessage{
			X:   round(snap.Pose.X, 2),
			Y:   round(snap.Pose.Y, 2),
			Yaw: round(degrees(snap.Pose.Yaw), 1),
		},
		Battery: round(snap.Battery, 1),
		Mode:    string(snap.Mode),
		EncRPM:  [2]float64{round(snap.LeftRPM, 1), round(snap.RightRPM, 1)},
		Scan: ScanMessage{
			AngleMin: round(degrees(snap.Scan.AngleMin), 3),
			AngleInc: round(degrees(snap.Scan.AngleIncrement), 3),
			Ranges:   snap.Scan.Ranges,
		},
		Path: pathPairs(snap.Path),
		Grid: e.grid,
	}
	if frame.Scan.Ranges == nil {
		frame.Scan.Ranges = []float64{}
	}
	if snap.Goal != nil {
		frame.Goal = &[2]float64{snap.Goal.X, snap.Goal.Y}
	}
	return frame
}

// Encode renders snap as JSON.
func (e *FrameEncoder) Encode(snap sim.Snapshot) ([]byte, error) {
	return json.Marshal(e.Frame(snap))
}

// SummaryFrame is the compact per-cycle record mirrored to a broker. It omits
// the map and the scan.
type SummaryFrame struct {
	Seq       uint64      `json:"seq"`
	TS        int64       `json:"ts"`
	Pose      PoseMessage `json:"pose"`
	Battery   float64     `json:"battery"`
	Mode      string      `json:"mode"`
	Goal      *[2]float64 `json:"goal"`
	V         float64     `json:"v"`
	W         float64     `json:"w"`
	EncRPM    [2]float64  `json:"enc_rpm"`
	PathLen   int         `json:"path_len"`
	Collision bool        `json:"collision"`
}

// Summary builds the compact record for snap.
func Summary(snap sim.Snapshot) SummaryFrame {
	frame := SummaryFrame{
		Seq: snap.Sequence,
		TS:  snap.Time.UnixMilli(),
		Pose: PoseMessage{
			X:   round(snap.Pose.X, 2),
			Y:   round(snap.Pose.Y, 2),
			Yaw: round(degrees(snap.Pose.Yaw), 1),
		},
		Battery:   round(snap.Battery, 1),
		Mode:      string(snap.Mode),
		V:         round(snap.Effective.Linear, 3),
		W:         round(snap.Effective.Angular, 3),
		EncRPM:    [2]float64{round(snap.LeftRPM, 1), round(snap.RightRPM, 1)},
		PathLen:   len(snap.Path),
		Collision: snap.Collision,
	}
	if snap.Goal != nil {
		frame.Goal = &[2]float64{snap.Goal.X, snap.Goal.Y}
	}
	return frame
}

func pathPairs(points []world.Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{round(p.X, 3), round(p.Y, 3)}
	}
	return out
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
