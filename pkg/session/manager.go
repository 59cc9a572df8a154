package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/orchestrator"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Session is a live editing session.
type Session struct {
	ID    string
	Store *Store

	orch     *orchestrator.Orchestrator
	detached atomic.Bool

	saveMu   sync.Mutex
	savedRev uint64

	dirty   chan struct{} // signals the write-through worker, capacity 1
	quit    chan struct{}
	flushed chan struct{} // closed when the worker has returned
}

// Evaluate sets the session source and evaluates it.
func (s *Session) Evaluate(source string) *orchestrator.Call {
	return s.orch.Evaluate(source)
}

// EvaluateAndWait sets the session source and waits for the evaluation to complete.
func (s *Session) EvaluateAndWait(ctx context.Context, source string) (*orchestrator.Call, error) {
	return s.orch.EvaluateAndWait(ctx, source)
}

// ToggleTheme flips the session theme.
func (s *Session) ToggleTheme() domain.Theme {
	return s.Store.ToggleTheme()
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() domain.Snapshot {
	return s.Store.Snapshot()
}

// Subscribe streams the session state; see Store.Subscribe.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	return s.Store.Subscribe()
}

// Manager keeps the live sessions of a process, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store  ports.SnapshotStore
	loader orchestrator.Loader

	sample   string
	theme    domain.Theme
	orchOpts []orchestrator.Option
	hooks    domain.LifecycleHooks

	mu    sync.Mutex            // Global lock for the maps
	locks map[string]*lockEntry // Map of active locks
	live  map[string]*Session

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	timeout time.Duration // bound for write-through saves
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSample sets the source new sessions start with.
func WithSample(source string) Option {
	return func(m *Manager) {
		m.sample = source
	}
}

// WithTheme sets the theme new sessions start with.
func WithTheme(theme domain.Theme) Option {
	return func(m *Manager) {
		m.theme = theme
	}
}

// WithHooks registers lifecycle hooks on every session.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = m.hooks.Merge(hooks)
	}
}

// WithOrchestratorOptions passes options to the orchestrator of every session.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(m *Manager) {
		m.orchOpts = append(m.orchOpts, opts...)
	}
}

// NewManager creates a Manager persisting to store and evaluating through ld.
// All sessions share ld, so the evaluator is loaded once per process.
func NewManager(store ports.SnapshotStore, ld orchestrator.Loader, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		loader:  ld,
		sample:  domain.SampleSource,
		theme:   domain.DefaultTheme,
		locks:   make(map[string]*lockEntry),
		live:    make(map[string]*Session),
		lockTTL: DefaultLockTTL,
		timeout: 5 * time.Second,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[sessionID]
	return s, ok
}

// Open returns the live session with the given ID, restoring it from the store or starting
// it from the sample program if it is not live yet. A new session evaluates the sample right
// away, which also triggers the evaluator load. A restored session whose last evaluation had
// not settled, or never ran, is evaluated again.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	return m.open(ctx, sessionID, true)
}

// Resume is Open for sessions that already exist. It returns domain.ErrSessionNotFound
// instead of starting a new session.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	return m.open(ctx, sessionID, false)
}

func (m *Manager) open(ctx context.Context, sessionID string, create bool) (*Session, error) {
	if s, ok := m.Get(sessionID); ok {
		return s, nil
	}

	var sess *Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if s, ok := m.Get(sessionID); ok {
			sess = s
			return nil
		}

		snap, err := m.store.Load(ctx, sessionID)
		fresh := false
		switch {
		case errors.Is(err, domain.ErrSessionNotFound) && !create:
			return err
		case errors.Is(err, domain.ErrSessionNotFound):
			snap = domain.NewSnapshot(sessionID, m.sample, m.theme)
			fresh = true
		case err != nil:
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		sess = m.start(snap)
		if fresh {
			// Persist immediately to reserve the ID
			if err := m.store.Save(ctx, sessionID, snap); err != nil {
				m.stop(sess)
				return fmt.Errorf("failed to initialize session: %w", err)
			}
		}

		m.mu.Lock()
		m.live[sessionID] = sess
		m.mu.Unlock()

		switch {
		case fresh:
			m.logger.Info("Session started", "session_id", sessionID)
			sess.Evaluate(snap.Source)
		case !snap.Settled() || snap.Status == domain.StatusPending || snap.Status == domain.StatusIdle:
			m.logger.Info("Session restored with pending evaluation", "session_id", sessionID)
			sess.Evaluate(snap.Source)
		default:
			m.logger.Info("Session restored", "session_id", sessionID)
		}
		return nil
	})
	return sess, err
}

// Close evicts a live session. Its last state stays in the store.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, ok := m.evict(sessionID)
		if !ok {
			return domain.ErrSessionNotFound
		}
		m.stop(sess)
		return m.persist(ctx, sess, sess.Snapshot())
	})
}

// Delete evicts a session and removes it from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if sess, ok := m.evict(sessionID); ok {
			m.stop(sess)
		}
		return m.store.Delete(ctx, sessionID)
	})
}

// List returns the IDs of live and stored sessions, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	m.mu.Lock()
	for id := range m.live {
		seen[id] = struct{}{}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Live returns the number of live sessions.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Shutdown closes every live session, persisting its final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

func (m *Manager) start(snap domain.Snapshot) *Session {
	sess := &Session{
		ID:       snap.SessionID,
		savedRev: snap.Revision,
		dirty:    make(chan struct{}, 1),
		quit:     make(chan struct{}),
		flushed:  make(chan struct{}),
	}
	sess.Store = NewStore(snap,
		WithStoreHooks(m.hooks),
		WithStoreLogger(m.logger),
		WithChangeListener(func(domain.Snapshot) {
			if sess.detached.Load() {
				return
			}
			select {
			case sess.dirty <- struct{}{}:
			default: // a save is already queued and will pick up this revision
			}
		}),
	)

	opts := append([]orchestrator.Option{
		orchestrator.WithHooks(m.hooks),
		orchestrator.WithLogger(m.logger),
	}, m.orchOpts...)
	sess.orch = orchestrator.New(sess.Store, m.loader, opts...)
	go m.writeThrough(sess)
	return sess
}

// writeThrough saves the latest snapshot of sess whenever it changes. Writers never wait
// on the snapshot store; bursts of changes collapse into one save.
func (m *Manager) writeThrough(sess *Session) {
	defer close(sess.flushed)
	for {
		select {
		case <-sess.dirty:
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			snap := sess.Snapshot()
			if err := m.persist(ctx, sess, snap); err != nil {
				m.logger.Error("Failed to persist session", "session_id", sess.ID, "revision", snap.Revision, "err", err)
			}
			cancel()
		case <-sess.quit:
			return
		}
	}
}

// stop detaches sess from the store, abandons its in-flight calls and ends the write-through
// worker. Callers persist or delete the final state afterwards.
func (m *Manager) stop(sess *Session) {
	sess.detached.Store(true)
	sess.orch.Close()
	sess.Store.Close()
	close(sess.quit)
	<-sess.flushed
}

func (m *Manager) evict(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.live[sessionID]
	if ok {
		delete(m.live, sessionID)
	}
	return sess, ok
}

// persist saves snap unless a newer revision was already saved.
func (m *Manager) persist(ctx context.Context, sess *Session, snap domain.Snapshot) error {
	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()

	if snap.Revision < sess.savedRev {
		return nil
	}
	if err := m.store.Save(ctx, sess.ID, snap); err != nil {
		return err
	}
	sess.savedRev = snap.Revision
	return nil
}
