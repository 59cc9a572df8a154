package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// ErrEvaluatorUnavailable is returned once the evaluator failed to load.
var ErrEvaluatorUnavailable = errors.New("evaluator unavailable")

// ErrLoaderClosed is returned by EnsureLoaded after Close.
var ErrLoaderClosed = errors.New("loader closed")

// Loader lazily acquires an evaluator and caches it for its lifetime.
type Loader struct {
	provider ports.EvaluatorProvider
	timeout  time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	status    domain.LoaderStatus
	evaluator ports.Evaluator
	err       error
	done      chan struct{} // closed when the load reaches a terminal phase
	acquires  int
}

// Option configures the Loader.
type Option func(*Loader)

// WithTimeout bounds the acquisition. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithHooks registers lifecycle hooks. Only OnLoaderTransition is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(l *Loader) {
		l.hooks = hooks
	}
}

// WithLogger configures a logger for the Loader.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a Loader in the unloaded phase. Nothing is acquired until EnsureLoaded is called.
func New(provider ports.EvaluatorProvider, opts ...Option) *Loader {
	l := &Loader{
		provider: provider,
		status:   domain.LoaderStatus{Phase: domain.LoaderUnloaded},
		done:     make(chan struct{}),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.base, l.cancel = context.WithCancel(context.Background())
	return l
}

// Provider returns the name of the underlying provider.
func (l *Loader) Provider() string {
	return l.provider.Name()
}

// Status returns the current phase.
func (l *Loader) Status() domain.LoaderStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Acquisitions returns how many times the provider has been asked for an evaluator.
// It is at most one.
func (l *Loader) Acquisitions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires
}

// EnsureLoaded returns the evaluator, starting the acquisition on first use.
// If ctx ends before the load completes, EnsureLoaded returns ctx.Err() and the load carries on.
func (l *Loader) EnsureLoaded(ctx context.Context) (ports.Evaluator, error) {
	l.mu.Lock()
	switch l.status.Phase {
	case domain.LoaderLoaded:
		ev := l.evaluator
		l.mu.Unlock()
		return ev, nil
	case domain.LoaderFailed:
		err := l.err
		l.mu.Unlock()
		return nil, err
	case domain.LoaderUnloaded:
		l.acquires++
		l.transition(ctx, domain.LoaderStatus{Phase: domain.LoaderLoading}, 0)
		go l.load()
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return l.result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Preload starts the acquisition in the background without waiting for it.
func (l *Loader) Preload() {
	go func() {
		_, _ = l.EnsureLoaded(context.Background())
	}()
}

// Close cancels an in-flight load and releases the evaluator if it holds resources.
// A loader that never started loading moves to the failed phase. The evaluator must not
// be used after Close.
func (l *Loader) Close(ctx context.Context) error {
	l.cancel()

	l.mu.Lock()
	phase := l.status.Phase
	ev := l.evaluator
	if phase == domain.LoaderUnloaded {
		l.err = fmt.Errorf("%w: %w", ErrEvaluatorUnavailable, ErrLoaderClosed)
		l.transition(ctx, domain.LoaderStatus{Phase: domain.LoaderFailed, Error: ErrLoaderClosed.Error()}, 0)
		close(l.done)
	}
	l.mu.Unlock()

	if phase == domain.LoaderLoading {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		l.mu.Lock()
		ev = l.evaluator
		l.mu.Unlock()
	}

	if closer, ok := ev.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (l *Loader) load() {
	ctx := l.base
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	l.logger.Debug("Acquiring evaluator", "provider", l.provider.Name())
	ev, err := l.acquire(ctx)
	if err == nil && ev == nil {
		err = errors.New("provider returned no evaluator")
	}
	elapsed := time.Since(start)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.err = fmt.Errorf("%w: %w", ErrEvaluatorUnavailable, err)
		l.transition(ctx, domain.LoaderStatus{Phase: domain.LoaderFailed, Error: err.Error()}, elapsed)
		l.logger.Error("Evaluator failed to load", "provider", l.provider.Name(), "err", err, "duration", elapsed)
	} else {
		l.evaluator = ev
		l.transition(ctx, domain.LoaderStatus{Phase: domain.LoaderLoaded}, elapsed)
		l.logger.Info("Evaluator loaded", "provider", l.provider.Name(), "duration", elapsed)
	}
	close(l.done)
}

// acquire calls the provider, turning a panic into a load failure.
func (l *Loader) acquire(ctx context.Context) (ev ports.Evaluator, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return l.provider.Acquire(ctx)
}

func (l *Loader) result() (ports.Evaluator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.evaluator, nil
}

// transition records a new phase. The caller must hold l.mu.
func (l *Loader) transition(ctx context.Context, status domain.LoaderStatus, elapsed time.Duration) {
	l.status = status
	if l.hooks.OnLoaderTransition != nil {
		l.hooks.OnLoaderTransition(ctx, &domain.LoaderEvent{
			EventBase: domain.EventBase{
				Timestamp: time.Now(),
				Type:      domain.EventLoaderTransition,
			},
			Status:   status,
			Provider: l.provider.Name(),
			Duration: elapsed,
		})
	}
}
