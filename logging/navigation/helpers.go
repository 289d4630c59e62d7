package navigation

import (
	"context"

	"github.com/AMR-Platform/Interface/logging"
)

const (
	// EventReplanned is emitted whenever the follower replaces its path.
	EventReplanned logging.EventType = "navigation.replanned"
	// EventGoalUnreachable is emitted once per goal when planning yields no path.
	EventGoalUnreachable logging.EventType = "navigation.goal_unreachable"
	// EventMotionRejected is emitted when the collision gate starts holding position.
	EventMotionRejected logging.EventType = "navigation.motion_rejected"
	// EventGoalSet is emitted when an observer assigns a new goal.
	EventGoalSet logging.EventType = "navigation.goal_set"
	// EventModeChanged is emitted when the navigation mode switches.
	EventModeChanged logging.EventType = "navigation.mode_changed"
)

// ReplannedPayload describes why and how a path was replaced.
type ReplannedPayload struct {
	Reason    string  `json:"reason"`
	Waypoints int     `json:"waypoints"`
	GoalX     float64 `json:"goalX"`
	GoalY     float64 `json:"goalY"`
}

// GoalPayload carries a goal position.
type GoalPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MotionRejectedPayload captures the pose that was held and the refused candidate.
type MotionRejectedPayload struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	CandidateX float64 `json:"candidateX"`
	CandidateY float64 `json:"candidateY"`
}

// ModeChangedPayload captures a mode transition.
type ModeChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Replanned publishes a debug event when the follower replaces its path.
func Replanned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ReplannedPayload, extra map[string]any) {
	publish(ctx, pub, EventReplanned, logging.SeverityDebug, tick, actor, payload, extra)
}

// GoalUnreachable publishes a warning when no path to the goal exists.
func GoalUnreachable(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload GoalPayload, extra map[string]any) {
	publish(ctx, pub, EventGoalUnreachable, logging.SeverityWarn, tick, actor, payload, extra)
}

// MotionRejected publishes an info event when the collision gate holds position.
func MotionRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MotionRejectedPayload, extra map[string]any) {
	publish(ctx, pub, EventMotionRejected, logging.SeverityInfo, tick, actor, payload, extra)
}

// GoalSet publishes an info event for a newly applied goal.
func GoalSet(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload GoalPayload, extra map[string]any) {
	publish(ctx, pub, EventGoalSet, logging.SeverityInfo, tick, actor, payload, extra)
}

// ModeChanged publishes an info event for a mode transition.
func ModeChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ModeChangedPayload, extra map[string]any) {
	publish(ctx, pub, EventModeChanged, logging.SeverityInfo, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNavigation,
		Payload:  payload,
		Extra:    extra,
	})
}
