package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/svoctor/lisper-go/pkg/adapters/memory"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/loader"
	"github.com/svoctor/lisper-go/pkg/ports"
	"github.com/svoctor/lisper-go/pkg/session"
)

// countingEvaluator answers "21" for the sample program and echoes anything else.
type countingEvaluator struct {
	calls atomic.Int32
}

func (e *countingEvaluator) Run(ctx context.Context, source string) (string, error) {
	e.calls.Add(1)
	if source == domain.SampleSource {
		return "21", nil
	}
	return "=> " + source, nil
}

// countingLocker records lock usage without coordinating anything.
type countingLocker struct {
	locks   atomic.Int32
	unlocks atomic.Int32
	err     error
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks.Add(1)
	return func(ctx context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

// failingStore fails every Save.
type failingStore struct {
	*memory.Store
}

func (f failingStore) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	return errors.New("disk full")
}

// slowStore delays every Save.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.Save(ctx, sessionID, snap)
}

// gatedEvaluator blocks every run until gate is closed or the run is cancelled.
type gatedEvaluator struct {
	gate  chan struct{}
	calls atomic.Int32
}

func (e *gatedEvaluator) Run(ctx context.Context, source string) (string, error) {
	e.calls.Add(1)
	select {
	case <-e.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if source == domain.SampleSource {
		return "21", nil
	}
	return "=> " + source, nil
}

func assertStored(t *testing.T, store ports.SnapshotStore, id string, ok func(domain.Snapshot) bool, msgAndArgs ...any) {
	t.Helper()
	assert.Eventually(t, func() bool {
		stored, err := store.Load(context.Background(), id)
		return err == nil && ok(stored)
	}, 2*time.Second, time.Millisecond, msgAndArgs...)
}

func newManager(t *testing.T, store ports.SnapshotStore, opts ...session.Option) (*session.Manager, *countingEvaluator) {
	t.Helper()
	ev := &countingEvaluator{}
	ld := loader.New(ports.Static("counting", ev))
	m := session.NewManager(store, ld, opts...)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, ev
}

func waitSettled(t *testing.T, sess *session.Session) domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	require.Eventually(t, func() bool {
		snap = sess.Snapshot()
		return snap.Status != domain.StatusPending && snap.Settled()
	}, 2*time.Second, time.Millisecond)
	return snap
}

func TestManager_OpenStartsFromSample(t *testing.T) {
	store := memory.NewStore()
	m, ev := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Open(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.SampleSource, sess.Snapshot().Source)

	snap := waitSettled(t, sess)
	assert.Equal(t, "21", snap.Output)
	assert.Equal(t, domain.StatusReady, snap.Status)
	assert.Equal(t, int32(1), ev.calls.Load())

	assertStored(t, store, "fresh", func(stored domain.Snapshot) bool {
		return stored.Output == "21"
	}, "every committed transition is written through")
}

func TestManager_OpenUsesConfiguredSampleAndTheme(t *testing.T) {
	m, _ := newManager(t, memory.NewStore(),
		session.WithSample("(+ 1 1)"),
		session.WithTheme(domain.ThemeDark),
	)

	sess, err := m.Open(context.Background(), "custom")
	require.NoError(t, err)

	snap := waitSettled(t, sess)
	assert.Equal(t, "(+ 1 1)", snap.Source)
	assert.Equal(t, "=> (+ 1 1)", snap.Output)
	assert.Equal(t, domain.ThemeDark, snap.Theme)
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	m, ev := newManager(t, memory.NewStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	sessions := make([]*session.Session, 20)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(ctx, "shared")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	waitSettled(t, sessions[0])
	assert.Equal(t, int32(1), ev.calls.Load(), "the sample is evaluated once per session")
	assert.Equal(t, 1, m.Live())
}

func TestManager_RestoresSettledSession(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	saved := domain.NewSnapshot("old", "(+ 2 2)", domain.ThemeDark)
	saved.Output, saved.Status = "4", domain.StatusReady
	saved.Started, saved.Committed, saved.Revision = 3, 3, 8
	require.NoError(t, store.Save(ctx, "old", saved))

	m, ev := newManager(t, store)
	sess, err := m.Open(ctx, "old")
	require.NoError(t, err)

	assert.Equal(t, saved, sess.Snapshot())
	assert.Equal(t, int32(0), ev.calls.Load(), "a settled session is not evaluated again")
}

func TestManager_ResumeDoesNotCreate(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	m, ev := newManager(t, store)

	_, err := m.Resume(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, m.Live())

	_, err = store.Load(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Resume must not reserve the ID")

	require.NoError(t, store.Save(ctx, "known", domain.NewSnapshot("known", "(+ 2 2)", domain.ThemeLight)))
	sess, err := m.Resume(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, "=> (+ 2 2)", waitSettled(t, sess).Output, "an idle restored session is evaluated")
	assert.Equal(t, int32(1), ev.calls.Load())
}

func TestManager_RestoresPendingSession(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	saved := domain.NewSnapshot("pending", "(+ 2 2)", domain.ThemeLight)
	saved.Status, saved.Started = domain.StatusPending, 2
	require.NoError(t, store.Save(ctx, "pending", saved))

	m, ev := newManager(t, store)
	sess, err := m.Open(ctx, "pending")
	require.NoError(t, err)

	snap := waitSettled(t, sess)
	assert.Equal(t, "=> (+ 2 2)", snap.Output)
	assert.Equal(t, uint64(3), snap.Committed)
	assert.Equal(t, int32(1), ev.calls.Load())
}

func TestManager_EvaluateWritesThrough(t *testing.T) {
	store := memory.NewStore()
	m, _ := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Open(ctx, "w")
	require.NoError(t, err)
	waitSettled(t, sess)

	call, err := sess.EvaluateAndWait(ctx, "(list 1 2)")
	require.NoError(t, err)
	require.True(t, call.Committed())

	assertStored(t, store, "w", func(stored domain.Snapshot) bool {
		return stored.Source == "(list 1 2)" && stored.Output == "=> (list 1 2)"
	})

	sess.ToggleTheme()
	assertStored(t, store, "w", func(stored domain.Snapshot) bool {
		return stored.Theme == domain.ThemeDark
	})
}

func TestManager_WriteThroughDoesNotBlockWriters(t *testing.T) {
	store := &slowStore{Store: memory.NewStore(), delay: 200 * time.Millisecond}
	m, _ := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Open(ctx, "slow")
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 10; i++ {
		sess.ToggleTheme()
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "toggles return before the store is written")

	assertStored(t, store.Store, "slow", func(stored domain.Snapshot) bool {
		return stored.Revision == sess.Snapshot().Revision
	}, "the latest revision is eventually stored")
}

func TestManager_CloseDuringEvaluationKeepsSourcePending(t *testing.T) {
	store := memory.NewStore()
	ev := &gatedEvaluator{gate: make(chan struct{})}
	m := session.NewManager(store, loader.New(ports.Static("gated", ev)))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	ctx := context.Background()

	_, err := m.Open(ctx, "s1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ev.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, m.Close(ctx, "s1"))

	stored, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutputWaiting, stored.Output, "a cancelled call is not a result")
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.False(t, stored.Settled())

	close(ev.gate)
	sess, err := m.Open(ctx, "s1")
	require.NoError(t, err)
	snap := waitSettled(t, sess)
	assert.Equal(t, "21", snap.Output, "the restored session is evaluated again")
	assert.Equal(t, domain.StatusReady, snap.Status)
}

func TestManager_CloseKeepsStoredState(t *testing.T) {
	store := memory.NewStore()
	m, _ := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Open(ctx, "c")
	require.NoError(t, err)
	waitSettled(t, sess)

	require.NoError(t, m.Close(ctx, "c"))
	assert.Equal(t, 0, m.Live())
	_, ok := m.Get("c")
	assert.False(t, ok)

	stored, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "21", stored.Output)

	assert.ErrorIs(t, m.Close(ctx, "c"), domain.ErrSessionNotFound)
}

func TestManager_Delete(t *testing.T) {
	store := memory.NewStore()
	m, _ := newManager(t, store)
	ctx := context.Background()

	sess, err := m.Open(ctx, "d")
	require.NoError(t, err)
	waitSettled(t, sess)

	require.NoError(t, m.Delete(ctx, "d"))
	_, err = store.Load(ctx, "d")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The detached session no longer writes through.
	sess.ToggleTheme()
	_, err = store.Load(ctx, "d")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_List(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "stored-only", domain.NewSnapshot("stored-only", "", "")))

	m, _ := newManager(t, store)
	_, err := m.Open(ctx, "live")
	require.NoError(t, err)

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "stored-only"}, ids)
}

func TestManager_Shutdown(t *testing.T) {
	m, _ := newManager(t, memory.NewStore())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := m.Open(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, 0, m.Live())
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	m, _ := newManager(t, memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	_, err := m.Open(ctx, "locked")
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, "locked"))

	assert.Equal(t, int32(2), locker.locks.Load())
	assert.Equal(t, locker.locks.Load(), locker.unlocks.Load())
}

func TestManager_LockerFailure(t *testing.T) {
	locker := &countingLocker{err: errors.New("redis down")}
	m, _ := newManager(t, memory.NewStore(), session.WithLocker(locker))

	_, err := m.Open(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 0, m.Live())
}

func TestManager_InitFailure(t *testing.T) {
	m, ev := newManager(t, failingStore{memory.NewStore()})

	_, err := m.Open(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize session")
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, int32(0), ev.calls.Load())
}
