package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/cmabridge/internal/models"
)

// memoryStorage is an in-memory SessionStorage
type memoryStorage struct {
	mu       sync.Mutex
	snapshot *models.SessionSnapshot
	writes   int
}

func (s *memoryStorage) SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.writes++
	return nil
}

func (s *memoryStorage) LoadSnapshot(ctx context.Context) (*models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

func (s *memoryStorage) HasSnapshot(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil, nil
}

func (s *memoryStorage) DeleteSnapshot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.writes++
	return nil
}

// mockDriver is a LoginDriver with a function field
type mockDriver struct {
	LoginFunc func(ctx context.Context, email, password string) (*models.SessionSnapshot, error)
}

func (d *mockDriver) Name() string {
	return "mock"
}

func (d *mockDriver) Login(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
	return d.LoginFunc(ctx, email, password)
}

// mockProfiles is a ProfileResolver with a function field
type mockProfiles struct {
	ResolveFunc func(name string) (string, string, error)
}

func (p *mockProfiles) Resolve(name string) (string, string, error) {
	return p.ResolveFunc(name)
}

func okProfiles() *mockProfiles {
	return &mockProfiles{ResolveFunc: func(name string) (string, string, error) {
		return "ops@example.com", "pw", nil
	}}
}

// memoryAttempts is an in-memory LoginAttemptStorage
type memoryAttempts struct {
	mu       sync.Mutex
	attempts map[string]models.LoginAttempt
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{attempts: map[string]models.LoginAttempt{}}
}

func (a *memoryAttempts) SaveAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[attempt.ID] = *attempt
	return nil
}

func (a *memoryAttempts) GetAttempt(ctx context.Context, id string) (*models.LoginAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	attempt := a.attempts[id]
	return &attempt, nil
}

func (a *memoryAttempts) ListAttempts(ctx context.Context, limit int) ([]*models.LoginAttempt, error) {
	return nil, nil
}

func (a *memoryAttempts) MarkInterrupted(ctx context.Context) (int, error) {
	return 0, nil
}

func tenantSnapshot() *models.SessionSnapshot {
	return &models.SessionSnapshot{Cookies: []models.SnapshotCookie{cookie("sid", "abc", tenantHost)}}
}

// lateCommitStorage reports no snapshot on the first check only, as when a
// login commits between Login's first check and its lock
type lateCommitStorage struct {
	*memoryStorage
	checks atomic.Int32
}

func (s *lateCommitStorage) HasSnapshot(ctx context.Context) (bool, error) {
	if s.checks.Add(1) == 1 {
		return false, nil
	}
	return s.memoryStorage.HasSnapshot(ctx)
}
