package orchestrator

import (
	"context"

	"github.com/svoctor/lisper-go/pkg/domain"
)

// Call tracks one Evaluate invocation.
type Call struct {
	// Seq is the sequence number of the call.
	Seq uint64
	// Source is the text the call evaluates.
	Source string

	done      chan struct{}
	output    string
	status    domain.EvaluationStatus
	committed bool
}

func newCall(seq uint64, source string) *Call {
	return &Call{Seq: seq, Source: source, done: make(chan struct{})}
}

// Done is closed when the call has completed and its commit decision is made.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call completes or ctx ends.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Output is the text the call produced. It is empty until Done is closed.
func (c *Call) Output() string {
	select {
	case <-c.done:
		return c.output
	default:
		return ""
	}
}

// Status is the evaluation status the call resolved to. It is empty until Done is closed.
func (c *Call) Status() domain.EvaluationStatus {
	select {
	case <-c.done:
		return c.status
	default:
		return ""
	}
}

// Committed reports whether the call's output reached the session state.
// A superseded call completes without being committed.
func (c *Call) Committed() bool {
	select {
	case <-c.done:
		return c.committed
	default:
		return false
	}
}
