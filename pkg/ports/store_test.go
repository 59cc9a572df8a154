package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// MockStore is a map-backed SnapshotStore used to check the contract suite itself.
type MockStore struct {
	mu   sync.Mutex
	data map[string]domain.Snapshot
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]domain.Snapshot)}
}

func (m *MockStore) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sessionID] = snap
	return nil
}

func (m *MockStore) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.data[sessionID]
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return snap, nil
}

func (m *MockStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sessionID)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestSnapshotStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, NewMockStore())
}

func TestStatic_ReturnsEvaluator(t *testing.T) {
	ev := ports.EvaluatorFunc(func(ctx context.Context, source string) (string, error) {
		return "ok:" + source, nil
	})
	provider := ports.Static("fixed", ev)

	if provider.Name() != "fixed" {
		t.Errorf("expected provider name 'fixed', got %q", provider.Name())
	}
	got, err := provider.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, _ := got.Run(context.Background(), "x")
	if out != "ok:x" {
		t.Errorf("expected 'ok:x', got %q", out)
	}
}
