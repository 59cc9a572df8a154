package loader_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/loader"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// gatedProvider blocks Acquire until release is closed and counts calls.
type gatedProvider struct {
	calls   atomic.Int32
	release chan struct{}
	ev      ports.Evaluator
	err     error
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		release: make(chan struct{}),
		ev: ports.EvaluatorFunc(func(ctx context.Context, source string) (string, error) {
			return source, nil
		}),
	}
}

func (p *gatedProvider) Name() string { return "gated" }

func (p *gatedProvider) Acquire(ctx context.Context) (ports.Evaluator, error) {
	p.calls.Add(1)
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.ev, nil
}

type closingEvaluator struct {
	closed atomic.Bool
}

func (c *closingEvaluator) Run(ctx context.Context, source string) (string, error) {
	return "", nil
}

func (c *closingEvaluator) Close() error {
	c.closed.Store(true)
	return nil
}

func TestLoader_StartsUnloaded(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p)

	assert.Equal(t, domain.LoaderUnloaded, l.Status().Phase)
	assert.Equal(t, int32(0), p.calls.Load(), "nothing is acquired before first use")
	assert.Equal(t, "gated", l.Provider())
}

func TestLoader_ConcurrentCallersShareOneLoad(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p)

	const callers = 50
	var wg sync.WaitGroup
	results := make([]ports.Evaluator, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.EnsureLoaded(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return l.Status().Phase == domain.LoaderLoading }, time.Second, time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load(), "provider must be called exactly once")
	assert.Equal(t, 1, l.Acquisitions())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		out, err := results[i].Run(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, "x", out)
	}
	assert.Equal(t, domain.LoaderLoaded, l.Status().Phase)
}

func TestLoader_CachesAfterLoad(t *testing.T) {
	p := newGatedProvider()
	close(p.release)
	l := loader.New(p)

	for i := 0; i < 5; i++ {
		_, err := l.EnsureLoaded(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestLoader_FailureIsPermanent(t *testing.T) {
	p := newGatedProvider()
	p.err = errors.New("module not found")
	close(p.release)
	l := loader.New(p)

	_, err := l.EnsureLoaded(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.ErrorIs(t, err, p.err)
	assert.Equal(t, "evaluator unavailable: module not found", err.Error())

	_, err = l.EnsureLoaded(context.Background())
	assert.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.Equal(t, int32(1), p.calls.Load(), "a failed load is never retried")

	status := l.Status()
	assert.Equal(t, domain.LoaderFailed, status.Phase)
	assert.Equal(t, "module not found", status.Error)
	assert.True(t, status.Terminal())
}

func TestLoader_NilEvaluatorIsFailure(t *testing.T) {
	l := loader.New(ports.ProviderFunc{Fn: func(context.Context) (ports.Evaluator, error) {
		return nil, nil
	}})

	_, err := l.EnsureLoaded(context.Background())
	assert.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
}

func TestLoader_ProviderPanicIsFailure(t *testing.T) {
	l := loader.New(ports.ProviderFunc{Fn: func(context.Context) (ports.Evaluator, error) {
		panic("boom")
	}})

	_, err := l.EnsureLoaded(context.Background())
	require.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoader_CallerCancellationDoesNotAbortLoad(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.EnsureLoaded(ctx)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(p.release)
	ev, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ev)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestLoader_Timeout(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p, loader.WithTimeout(10*time.Millisecond))

	_, err := l.EnsureLoaded(context.Background())
	require.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoader_HooksObserveTransitions(t *testing.T) {
	p := newGatedProvider()
	close(p.release)

	var (
		mu     sync.Mutex
		phases []domain.LoaderPhase
	)
	hooks := domain.LifecycleHooks{
		OnLoaderTransition: func(ctx context.Context, e *domain.LoaderEvent) {
			mu.Lock()
			defer mu.Unlock()
			phases = append(phases, e.Status.Phase)
			assert.Equal(t, "gated", e.Provider)
		},
	}
	l := loader.New(p, loader.WithHooks(hooks))

	_, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.LoaderPhase{domain.LoaderLoading, domain.LoaderLoaded}, phases)
}

func TestLoader_Preload(t *testing.T) {
	p := newGatedProvider()
	close(p.release)
	l := loader.New(p)

	l.Preload()
	require.Eventually(t, func() bool { return l.Status().Phase == domain.LoaderLoaded }, time.Second, time.Millisecond)
}

func TestLoader_CloseReleasesEvaluator(t *testing.T) {
	ev := &closingEvaluator{}
	l := loader.New(ports.Static("static", ev))

	_, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Close(context.Background()))
	assert.True(t, ev.closed.Load())
}

func TestLoader_CloseBeforeLoad(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p)

	require.NoError(t, l.Close(context.Background()))
	_, err := l.EnsureLoaded(context.Background())
	assert.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.ErrorIs(t, err, loader.ErrLoaderClosed)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestLoader_CloseCancelsInFlightLoad(t *testing.T) {
	p := newGatedProvider()
	l := loader.New(p)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.EnsureLoaded(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.Close(context.Background()))
	err := <-errCh
	assert.ErrorIs(t, err, loader.ErrEvaluatorUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
