package observability

import (
	"context"
	"log/slog"

	"github.com/svoctor/lisper-go/pkg/domain"
)

// LogHooks returns lifecycle hooks that log every transition to logger.
// Source updates and evaluation starts are logged at debug level; commits, discards,
// loader transitions and theme toggles at info level. Failed loads are logged as errors.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSourceUpdate: func(ctx context.Context, e *domain.EvaluationEvent) {
			logger.DebugContext(ctx, "source_update",
				"session_id", e.SessionID,
				"seq", e.Seq,
				"size", len(e.Source),
			)
		},
		OnEvaluationStart: func(ctx context.Context, e *domain.EvaluationEvent) {
			logger.DebugContext(ctx, "evaluation_start", "session_id", e.SessionID, "seq", e.Seq)
		},
		OnEvaluationCommit: func(ctx context.Context, e *domain.EvaluationEvent) {
			logger.InfoContext(ctx, "evaluation_commit",
				"session_id", e.SessionID,
				"seq", e.Seq,
				"duration", e.Duration,
				"is_error", e.IsError,
				"unavailable", e.Unavailable,
			)
		},
		OnEvaluationDiscard: func(ctx context.Context, e *domain.EvaluationEvent) {
			logger.InfoContext(ctx, "evaluation_discard",
				"session_id", e.SessionID,
				"seq", e.Seq,
				"duration", e.Duration,
			)
		},
		OnLoaderTransition: func(ctx context.Context, e *domain.LoaderEvent) {
			if e.Status.Phase == domain.LoaderFailed {
				logger.ErrorContext(ctx, "loader_transition",
					"provider", e.Provider,
					"phase", e.Status.Phase,
					"err", e.Status.Error,
					"duration", e.Duration,
				)
				return
			}
			logger.InfoContext(ctx, "loader_transition",
				"provider", e.Provider,
				"phase", e.Status.Phase,
				"duration", e.Duration,
			)
		},
		OnThemeToggle: func(ctx context.Context, e *domain.ThemeEvent) {
			logger.InfoContext(ctx, "theme_toggle", "session_id", e.SessionID, "theme", e.Theme)
		},
	}
}
