package lifecycle

import (
	"context"

	"github.com/AMR-Platform/Interface/logging"
)

const (
	// EventObserverAttached is emitted when an observer connection is registered.
	EventObserverAttached logging.EventType = "lifecycle.observer_attached"
	// EventObserverDetached is emitted when an observer connection goes away.
	EventObserverDetached logging.EventType = "lifecycle.observer_detached"
	// EventSchedulerActive is emitted when the first observer wakes the scheduler.
	EventSchedulerActive logging.EventType = "lifecycle.scheduler_active"
	// EventSchedulerIdle is emitted when the last observer leaves.
	EventSchedulerIdle logging.EventType = "lifecycle.scheduler_idle"
	// EventCommandIgnored is emitted for well-formed observer messages that do
	// not map to a command.
	EventCommandIgnored logging.EventType = "lifecycle.command_ignored"
)

// ObserverPayload captures the remote address and resulting observer count.
type ObserverPayload struct {
	Remote    string `json:"remote,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Observers int    `json:"observers"`
}

// CommandIgnoredPayload explains why an observer message was skipped.
type CommandIgnoredPayload struct {
	MessageType string `json:"messageType"`
	Reason      string `json:"reason"`
}

// SchedulerPayload captures the observer count that triggered a transition.
type SchedulerPayload struct {
	Observers int `json:"observers"`
}

// ObserverAttached publishes an observer join event.
func ObserverAttached(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ObserverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverAttached,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ObserverDetached publishes an observer leave event.
func ObserverDetached(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ObserverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverDetached,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// SchedulerActive publishes the idle to active transition.
func SchedulerActive(ctx context.Context, pub logging.Publisher, tick uint64, payload SchedulerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSchedulerActive,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// SchedulerIdle publishes the active to idle transition.
func SchedulerIdle(ctx context.Context, pub logging.Publisher, tick uint64, payload SchedulerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSchedulerIdle,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// CommandIgnored publishes a debug event for an observer message that was skipped.
func CommandIgnored(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CommandIgnoredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandIgnored,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
