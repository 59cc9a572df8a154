package orchestrator

import (
	"context"

	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// State is the session state the orchestrator writes to.
// Implementations apply each method atomically with respect to readers.
type State interface {
	// BeginEvaluation stores source, marks the session pending and returns the
	// sequence number allotted to this call.
	BeginEvaluation(source string) uint64

	// CommitEvaluation stores output for call seq if policy admits it, given the
	// newest started and last committed sequence numbers. It reports whether the
	// output was stored.
	CommitEvaluation(seq uint64, output string, status domain.EvaluationStatus, policy domain.OrderingPolicy) bool

	// AbandonEvaluation ends call seq without a result. The state stays pending, so
	// whoever restores it knows the source still needs evaluating.
	AbandonEvaluation(seq uint64)

	// SessionID identifies the session in logs and hooks.
	SessionID() string
}

// Loader hands out the evaluator.
type Loader interface {
	EnsureLoaded(ctx context.Context) (ports.Evaluator, error)
}
