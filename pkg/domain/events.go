package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSourceUpdate      EventType = "source_update"
	EventEvaluationStart   EventType = "evaluation_start"
	EventEvaluationCommit  EventType = "evaluation_commit"
	EventEvaluationDiscard EventType = "evaluation_discard"
	EventLoaderTransition  EventType = "loader_transition"
	EventThemeToggle       EventType = "theme_toggle"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

// EvaluationEvent describes one evaluate call.
type EvaluationEvent struct {
	EventBase
	Seq      uint64        `json:"seq"`
	Source   string        `json:"source,omitempty"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	// Unavailable is set when the call could not run because the evaluator failed to load.
	Unavailable bool `json:"unavailable,omitempty"`
	// IsError is set when the evaluator call itself failed (not when Lisp reported an error).
	IsError bool `json:"is_error,omitempty"`
}

// LoaderEvent describes a loader phase change.
type LoaderEvent struct {
	EventBase
	Status   LoaderStatus  `json:"status"`
	Provider string        `json:"provider,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ThemeEvent describes a theme toggle.
type ThemeEvent struct {
	EventBase
	Theme Theme `json:"theme"`
}

// LifecycleHooks defines callbacks for observability.
// Hooks run synchronously on the goroutine that caused the transition and must not block.
type LifecycleHooks struct {
	OnSourceUpdate      func(context.Context, *EvaluationEvent)
	OnEvaluationStart   func(context.Context, *EvaluationEvent)
	OnEvaluationCommit  func(context.Context, *EvaluationEvent)
	OnEvaluationDiscard func(context.Context, *EvaluationEvent)
	OnLoaderTransition  func(context.Context, *LoaderEvent)
	OnThemeToggle       func(context.Context, *ThemeEvent)
}

// Merge returns hooks that call h first and then other, for every hook either defines.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSourceUpdate:      chain(h.OnSourceUpdate, other.OnSourceUpdate),
		OnEvaluationStart:   chain(h.OnEvaluationStart, other.OnEvaluationStart),
		OnEvaluationCommit:  chain(h.OnEvaluationCommit, other.OnEvaluationCommit),
		OnEvaluationDiscard: chain(h.OnEvaluationDiscard, other.OnEvaluationDiscard),
		OnLoaderTransition:  chain(h.OnLoaderTransition, other.OnLoaderTransition),
		OnThemeToggle:       chain(h.OnThemeToggle, other.OnThemeToggle),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
