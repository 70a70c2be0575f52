package loginstate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

// fakeSessions is a SessionSource with a switchable session
type fakeSessions struct {
	mu         sync.Mutex
	hasSession bool
	inProgress bool
	hooks      []func()
}

func (f *fakeSessions) HasSession(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasSession
}

func (f *fakeSessions) LoginInProgress() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgress
}

func (f *fakeSessions) Bridge(ctx context.Context) (*session.BridgedSession, error) {
	if !f.HasSession(ctx) {
		return nil, session.ErrSessionMissing
	}
	return &session.BridgedSession{Endpoint: "https://acme.cc.catonetworks.com/api/graphql"}, nil
}

func (f *fakeSessions) OnSessionChange(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

// change simulates a login or logout
func (f *fakeSessions) change(has bool) {
	f.mu.Lock()
	f.hasSession = has
	hooks := append([]func(){}, f.hooks...)
	f.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// mockRunner is a QueryRunner with a function field
type mockRunner struct {
	calls       int32
	ExecuteFunc func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error)
}

func (m *mockRunner) ExecuteAs(ctx context.Context, sess *session.BridgedSession, captureName, operationName, query string, variables map[string]interface{}) (*models.GraphQLEnvelope, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.ExecuteFunc(ctx, captureName)
}

func (m *mockRunner) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

func loginStateEnvelope(accountName string) *models.GraphQLEnvelope {
	return &models.GraphQLEnvelope{
		Data: json.RawMessage(`{"loginState":{"accountID":"42","accountName":"` + accountName + `","email":"ops@example.com"}}`),
	}
}

func TestGetStatus_NoSession(t *testing.T) {
	sessions := &fakeSessions{inProgress: true}
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		t.Fatal("no fetch without a session")
		return nil, nil
	}}
	svc := NewService(sessions, runner, nil, arbor.NewLogger())

	status := svc.GetStatus(context.Background())
	assert.False(t, status.LoggedIn)
	assert.True(t, status.LoginInProgress)
	assert.Empty(t, status.AccountName)
	assert.Empty(t, status.Error)
}

func TestGetStatus_CachesAfterFirstFetch(t *testing.T) {
	sessions := &fakeSessions{hasSession: true}
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		assert.Equal(t, StatusCaptureName, captureName)
		return loginStateEnvelope("E2211"), nil
	}}
	svc := NewService(sessions, runner, map[string]string{"E2211": "Acme Lab"}, arbor.NewLogger())

	first := svc.GetStatus(context.Background())
	second := svc.GetStatus(context.Background())

	assert.Equal(t, first, second)
	assert.True(t, first.LoggedIn)
	assert.Equal(t, "E2211", first.AccountName)
	assert.Equal(t, "Acme Lab", first.DisplayName)
	assert.Equal(t, 1, runner.Calls())
}

func TestGetStatus_ConcurrentFirstCallsFetchOnce(t *testing.T) {
	sessions := &fakeSessions{hasSession: true}
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		time.Sleep(20 * time.Millisecond)
		return loginStateEnvelope("E2211"), nil
	}}
	svc := NewService(sessions, runner, nil, arbor.NewLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := svc.GetStatus(context.Background())
			assert.Equal(t, "E2211", status.AccountName)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, runner.Calls())
}

func TestGetStatus_FailureNotCached(t *testing.T) {
	sessions := &fakeSessions{hasSession: true}
	fail := true
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		if fail {
			return nil, errors.New("HTTP 401")
		}
		return loginStateEnvelope("E2211"), nil
	}}
	svc := NewService(sessions, runner, nil, arbor.NewLogger())

	status := svc.GetStatus(context.Background())
	assert.True(t, status.LoggedIn)
	assert.Equal(t, "HTTP 401", status.Error)
	assert.Empty(t, status.AccountName)

	fail = false
	status = svc.GetStatus(context.Background())
	assert.Empty(t, status.Error)
	assert.Equal(t, "E2211", status.AccountName)
	assert.Equal(t, "E2211", status.DisplayName, "unmapped name falls back to itself")
	assert.Equal(t, 2, runner.Calls())
}

func TestGetStatus_SessionChangeInvalidates(t *testing.T) {
	sessions := &fakeSessions{hasSession: true}
	name := "E1"
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		return loginStateEnvelope(name), nil
	}}
	svc := NewService(sessions, runner, nil, arbor.NewLogger())

	assert.Equal(t, "E1", svc.GetStatus(context.Background()).AccountName)

	sessions.change(false)
	assert.False(t, svc.GetStatus(context.Background()).LoggedIn)

	name = "E2"
	sessions.change(true)
	assert.Equal(t, "E2", svc.GetStatus(context.Background()).AccountName)
	assert.Equal(t, 2, runner.Calls())
}

func TestCache_StaleGenerationRejected(t *testing.T) {
	cache := NewCache()
	_, gen := cache.Get()

	cache.Invalidate()

	assert.False(t, cache.Store(&models.LoginState{AccountName: "stale"}, gen))
	state, current := cache.Get()
	assert.Nil(t, state)

	assert.True(t, cache.Store(&models.LoginState{AccountName: "fresh"}, current))
	state, _ = cache.Get()
	require.NotNil(t, state)
	assert.Equal(t, "fresh", state.AccountName)
}

func TestFetchIdentity(t *testing.T) {
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		assert.Equal(t, "loginState_for_static_route", captureName)
		return loginStateEnvelope("E2211"), nil
	}}
	svc := NewService(&fakeSessions{hasSession: true}, runner, nil, arbor.NewLogger())

	state, err := svc.FetchIdentity(context.Background(), &session.BridgedSession{}, "loginState_for_static_route")
	require.NoError(t, err)
	assert.Equal(t, "42", state.AccountID)
	assert.Equal(t, "ops@example.com", state.Raw["email"])

	cachedState, _ := svc.Cache().Get()
	assert.Nil(t, cachedState, "identity fetches never populate the cache")
}

func TestDisplayName(t *testing.T) {
	svc := NewService(&fakeSessions{}, &mockRunner{}, map[string]string{"E1": "Lab"}, arbor.NewLogger())
	assert.Equal(t, "Lab", svc.DisplayName("E1"))
	assert.Equal(t, "E9", svc.DisplayName("E9"))
	assert.Equal(t, "", svc.DisplayName(""))
}

func TestNumericIdentityFields(t *testing.T) {
	runner := &mockRunner{ExecuteFunc: func(ctx context.Context, captureName string) (*models.GraphQLEnvelope, error) {
		return &models.GraphQLEnvelope{
			Data: json.RawMessage(`{"loginState":{"id":7,"accountID":12345,"accountName":"E1"}}`),
		}, nil
	}}
	svc := NewService(&fakeSessions{hasSession: true}, runner, map[string]string{"E1": "Lab"}, arbor.NewLogger())

	state, err := svc.FetchIdentity(context.Background(), &session.BridgedSession{}, "loginState_for_static_route")
	require.NoError(t, err)
	assert.Equal(t, "7", state.ID)
	assert.Equal(t, "12345", state.AccountID)
	assert.Equal(t, "E1", state.AccountName)
	assert.Equal(t, float64(12345), state.Raw["accountID"])

	status := svc.GetStatus(context.Background())
	assert.True(t, status.LoggedIn)
	assert.Empty(t, status.Error)
	assert.Equal(t, "E1", status.AccountName)
	assert.Equal(t, "Lab", status.DisplayName)
}
