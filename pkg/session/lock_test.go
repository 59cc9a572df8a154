package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/svoctor/lisper-go/pkg/adapters/memory"
	"github.com/svoctor/lisper-go/pkg/ports"
)

func TestManager_LockLifecycle(t *testing.T) {
	ld := ports.Static("nop", ports.EvaluatorFunc(func(ctx context.Context, source string) (string, error) {
		return "", nil
	}))
	mgr := NewManager(memory.NewStore(), staticLoader{ld})
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.WithLock(ctx, sid, func(context.Context) error { return nil })
		_ = mgr.Delete(ctx, sid)
	}

	lockCount := len(mgr.locks)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}

// staticLoader hands out the provider's evaluator without caching.
type staticLoader struct {
	provider ports.EvaluatorProvider
}

func (l staticLoader) EnsureLoaded(ctx context.Context) (ports.Evaluator, error) {
	return l.provider.Acquire(ctx)
}
