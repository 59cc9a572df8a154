package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
)

// subscriberBuffer is the number of snapshots a slow subscriber may lag behind
// before its oldest pending snapshots are dropped.
const subscriberBuffer = 16

// Store holds the state of one session.
type Store struct {
	mu       sync.RWMutex
	snap     domain.Snapshot
	inflight int

	subMu       sync.Mutex
	subscribers map[chan domain.Snapshot]struct{}

	listeners []func(domain.Snapshot)
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithChangeListener registers fn to be called with every new snapshot.
// Listeners run outside the store lock, so calls for consecutive revisions may overlap.
func WithChangeListener(fn func(domain.Snapshot)) StoreOption {
	return func(s *Store) {
		s.listeners = append(s.listeners, fn)
	}
}

// WithStoreHooks registers lifecycle hooks. Only OnThemeToggle is used.
func WithStoreHooks(hooks domain.LifecycleHooks) StoreOption {
	return func(s *Store) {
		s.hooks = hooks
	}
}

// WithStoreLogger configures a logger for the Store.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store holding snap.
func NewStore(snap domain.Snapshot, opts ...StoreOption) *Store {
	s := &Store{
		snap:        snap,
		subscribers: make(map[chan domain.Snapshot]struct{}),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the ID of the session.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.SessionID
}

// Snapshot returns the current state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Source returns the current source text.
func (s *Store) Source() string {
	return s.Snapshot().Source
}

// Output returns the output of the last committed evaluation.
func (s *Store) Output() string {
	return s.Snapshot().Output
}

// Theme returns the current theme.
func (s *Store) Theme() domain.Theme {
	return s.Snapshot().Theme
}

// BeginEvaluation stores source and allots the next sequence number.
func (s *Store) BeginEvaluation(source string) uint64 {
	snap := s.update(func(snap *domain.Snapshot) bool {
		snap.Source = source
		snap.Started++
		snap.Status = domain.StatusPending
		s.inflight++
		return true
	})
	return snap.Started
}

// CommitEvaluation stores output for call seq if policy admits it.
// The session stays pending while other calls are in flight.
func (s *Store) CommitEvaluation(seq uint64, output string, status domain.EvaluationStatus, policy domain.OrderingPolicy) bool {
	committed := false
	s.update(func(snap *domain.Snapshot) bool {
		if s.inflight > 0 {
			s.inflight--
		}
		if !policy.Admits(seq, snap.Started, snap.Committed) {
			if s.inflight == 0 && snap.Status == domain.StatusPending {
				// The admitted result already landed; nothing is left in flight.
				snap.Status = domain.StatusReady
				return true
			}
			return false
		}
		snap.Output = output
		snap.Committed = seq
		snap.Status = status
		if s.inflight > 0 && status != domain.StatusUnavailable {
			snap.Status = domain.StatusPending
		}
		committed = true
		return true
	})
	return committed
}

// AbandonEvaluation forgets call seq without publishing anything. The snapshot keeps
// Committed below Started, so it is not Settled.
func (s *Store) AbandonEvaluation(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		s.inflight--
	}
}

// ToggleTheme flips the theme and returns the new value.
func (s *Store) ToggleTheme() domain.Theme {
	snap := s.update(func(snap *domain.Snapshot) bool {
		snap.Theme = snap.Theme.Toggle()
		return true
	})

	if s.hooks.OnThemeToggle != nil {
		s.hooks.OnThemeToggle(context.Background(), &domain.ThemeEvent{
			EventBase: domain.EventBase{
				Timestamp: time.Now(),
				Type:      domain.EventThemeToggle,
				SessionID: snap.SessionID,
			},
			Theme: snap.Theme,
		})
	}
	return snap.Theme
}

// Subscribe returns a channel receiving every new snapshot, starting with the current one,
// and a function that ends the subscription and closes the channel. A subscriber that falls
// behind misses intermediate snapshots, never the newest one.
func (s *Store) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, subscriberBuffer)

	s.mu.RLock()
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snap
	s.subMu.Unlock()
	s.mu.RUnlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// Close ends every subscription.
func (s *Store) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// update applies fn to a copy of the snapshot and publishes the result if fn reports a change.
func (s *Store) update(fn func(*domain.Snapshot) bool) domain.Snapshot {
	s.mu.Lock()
	next := s.snap
	if !fn(&next) {
		s.mu.Unlock()
		return next
	}
	next.Revision++
	s.snap = next

	// Publishing under subMu keeps subscribers in revision order.
	s.subMu.Lock()
	s.mu.Unlock()
	s.broadcast(next)
	s.subMu.Unlock()

	for _, fn := range s.listeners {
		fn(next)
	}
	return next
}

// broadcast sends snap to every subscriber. The caller must hold subMu.
// A full buffer loses its oldest snapshot, so the last one a subscriber reads is current.
func (s *Store) broadcast(snap domain.Snapshot) {
	for ch := range s.subscribers {
		for {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
					s.logger.Debug("Session subscriber lagging, dropping oldest snapshot",
						"session_id", snap.SessionID,
						"revision", snap.Revision,
					)
				default:
				}
				continue
			}
			break
		}
	}
}
