package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/loader"
)

// ErrClosed is reported as the output of calls made after Close.
var ErrClosed = errors.New("orchestrator closed")

// Orchestrator runs the evaluate sequence for one session.
type Orchestrator struct {
	state   State
	loader  Loader
	policy  domain.OrderingPolicy
	timeout time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithOrdering selects how overlapping calls are committed.
func WithOrdering(policy domain.OrderingPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithRunTimeout bounds a single evaluator run. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithLogger configures a logger for the Orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator writing to state and evaluating through ld.
func New(state State, ld Loader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:  state,
		loader: ld,
		policy: domain.DefaultOrdering,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.base, o.cancel = context.WithCancel(context.Background())
	return o
}

// Policy returns the ordering policy in use.
func (o *Orchestrator) Policy() domain.OrderingPolicy {
	return o.policy
}

// Evaluate writes source to the session state and evaluates it in the background.
// The source is visible to readers when Evaluate returns; the returned Call completes
// once the result has been committed or discarded. After Close, Evaluate leaves the state
// untouched and returns a completed, uncommitted Call.
func (o *Orchestrator) Evaluate(source string) *Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		call := newCall(0, source)
		call.output = "error: " + ErrClosed.Error()
		close(call.done)
		return call
	}

	seq := o.state.BeginEvaluation(source)
	call := newCall(seq, source)

	o.fire(o.hooks.OnSourceUpdate, &domain.EvaluationEvent{
		EventBase: o.event(domain.EventSourceUpdate),
		Seq:       seq,
		Source:    source,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(call)
	}()
	return call
}

// EvaluateAndWait is Evaluate followed by waiting for the call to complete.
// The only error it returns is ctx.Err(); the evaluation keeps running in that case.
func (o *Orchestrator) EvaluateAndWait(ctx context.Context, source string) (*Call, error) {
	call := o.Evaluate(source)
	if err := call.Wait(ctx); err != nil {
		return call, err
	}
	return call, nil
}

// Close cancels in-flight evaluations and waits for their goroutines to finish.
// Cancelled calls complete uncommitted; the state keeps their source pending.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) run(call *Call) {
	defer close(call.done)
	ctx := o.base
	start := time.Now()

	o.fire(o.hooks.OnEvaluationStart, &domain.EvaluationEvent{
		EventBase: o.event(domain.EventEvaluationStart),
		Seq:       call.Seq,
		Source:    call.Source,
	})

	output, status, runErr := o.produce(ctx, call.Source)
	call.output, call.status = output, status

	if runErr != nil && ctx.Err() != nil {
		// Cancelled by Close. A cancellation is not an evaluator result.
		o.state.AbandonEvaluation(call.Seq)
		call.output, call.status = "error: "+ErrClosed.Error(), domain.StatusPending
		o.fire(o.hooks.OnEvaluationDiscard, &domain.EvaluationEvent{
			EventBase: o.event(domain.EventEvaluationDiscard),
			Seq:       call.Seq,
			Source:    call.Source,
			Output:    call.output,
			Duration:  time.Since(start),
			IsError:   true,
		})
		o.logger.Debug("Evaluation abandoned", "session_id", o.state.SessionID(), "seq", call.Seq)
		return
	}
	call.committed = o.state.CommitEvaluation(call.Seq, output, status, o.policy)

	evt := &domain.EvaluationEvent{
		Seq:         call.Seq,
		Source:      call.Source,
		Output:      output,
		Duration:    time.Since(start),
		Unavailable: status == domain.StatusUnavailable,
		IsError:     runErr != nil,
	}
	if call.committed {
		evt.EventBase = o.event(domain.EventEvaluationCommit)
		o.fire(o.hooks.OnEvaluationCommit, evt)
		o.logger.Debug("Evaluation committed", "session_id", o.state.SessionID(), "seq", call.Seq, "duration", evt.Duration)
		return
	}
	evt.EventBase = o.event(domain.EventEvaluationDiscard)
	o.fire(o.hooks.OnEvaluationDiscard, evt)
	o.logger.Debug("Evaluation superseded", "session_id", o.state.SessionID(), "seq", call.Seq, "policy", o.policy)
}

// produce obtains the evaluator and runs source, folding every failure into output text.
func (o *Orchestrator) produce(ctx context.Context, source string) (string, domain.EvaluationStatus, error) {
	ev, err := o.loader.EnsureLoaded(ctx)
	if err != nil {
		if errors.Is(err, loader.ErrEvaluatorUnavailable) {
			return err.Error(), domain.StatusUnavailable, err
		}
		return fmt.Sprintf("error: %v", err), domain.StatusReady, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	output, err := o.runSafely(ctx, ev.Run, source)
	if err != nil {
		o.logger.Warn("Evaluator call failed", "session_id", o.state.SessionID(), "err", err)
		return fmt.Sprintf("error: %v", err), domain.StatusReady, err
	}
	return output, domain.StatusReady, nil
}

func (o *Orchestrator) runSafely(ctx context.Context, run func(context.Context, string) (string, error), source string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panicked: %v", r)
		}
	}()
	return run(ctx, source)
}

func (o *Orchestrator) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		SessionID: o.state.SessionID(),
	}
}

func (o *Orchestrator) fire(hook func(context.Context, *domain.EvaluationEvent), evt *domain.EvaluationEvent) {
	if hook != nil {
		hook(o.base, evt)
	}
}
