package ports

import (
	"context"
	"errors"
)

// ErrEvaluatorMissingEntrypoint is returned by providers whose module does not export the run entry point.
var ErrEvaluatorMissingEntrypoint = errors.New("evaluator does not export the run entry point")

// Evaluator executes Lisp source text and returns its textual output.
// Lisp-level failures (parse errors, unknown symbols) are reported as output text;
// the returned error is reserved for failures of the evaluator itself (a trap, a crashed process).
// Implementations must be safe for concurrent use.
type Evaluator interface {
	Run(ctx context.Context, source string) (string, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, source string) (string, error)

// Run calls f.
func (f EvaluatorFunc) Run(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// EvaluatorProvider acquires an Evaluator. Acquisition may be slow (fetching and compiling a
// module), which is why callers go through a loader that performs it at most once.
type EvaluatorProvider interface {
	// Name identifies the provider in logs and metrics (e.g. "wasm", "process").
	Name() string

	// Acquire loads the evaluator. It is called at most once per loader.
	Acquire(ctx context.Context) (Evaluator, error)
}

// ProviderFunc adapts a function to the EvaluatorProvider interface.
type ProviderFunc struct {
	Label string
	Fn    func(ctx context.Context) (Evaluator, error)
}

// Name returns the provider label.
func (p ProviderFunc) Name() string {
	if p.Label == "" {
		return "func"
	}
	return p.Label
}

// Acquire calls the wrapped function.
func (p ProviderFunc) Acquire(ctx context.Context) (Evaluator, error) {
	return p.Fn(ctx)
}

// Static returns a provider that hands out ev immediately.
func Static(name string, ev Evaluator) EvaluatorProvider {
	return ProviderFunc{
		Label: name,
		Fn: func(context.Context) (Evaluator, error) {
			return ev, nil
		},
	}
}
