package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/profiles"
)

func newTestManager(storage *memoryStorage, driver *mockDriver, resolver ProfileResolver, opts ...Option) *Manager {
	return NewManager(storage, resolver, driver, testTarget(), arbor.NewLogger(), opts...)
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManager_LoginStoresSnapshotAndRunsHooks(t *testing.T) {
	storage := &memoryStorage{}
	attempts := newMemoryAttempts()
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		assert.Equal(t, "ops@example.com", email)
		assert.Equal(t, "pw", password)
		return tenantSnapshot(), nil
	}}
	manager := newTestManager(storage, driver, okProfiles(), WithAttemptStorage(attempts))

	var hookSawSnapshot atomic.Bool
	manager.OnSessionChange(func() {
		// The store write is visible to hooks
		hookSawSnapshot.Store(storage.snapshot != nil)
	})

	assert.False(t, manager.HasSession(context.Background()))

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, models.LoginStarted, result.Status)
	assert.NotEmpty(t, result.TaskID)

	require.NoError(t, manager.Wait(waitCtx(t)))

	assert.True(t, manager.HasSession(context.Background()))
	assert.True(t, hookSawSnapshot.Load())
	assert.False(t, manager.LoginInProgress())

	attempt, err := attempts.GetAttempt(context.Background(), result.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.LoginAttemptSucceeded, attempt.Status)
	assert.Equal(t, "mock", attempt.Driver)
	assert.NotNil(t, attempt.FinishedAt)

	bridged, err := manager.Bridge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", bridged.Header.Get("Cookie"))
}

func TestManager_LoginShortCircuitsWhenLoggedIn(t *testing.T) {
	storage := &memoryStorage{snapshot: tenantSnapshot()}
	var calls atomic.Int32
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		calls.Add(1)
		return tenantSnapshot(), nil
	}}
	manager := newTestManager(storage, driver, okProfiles())

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, models.LoginAlreadyLoggedIn, result.Status)
	assert.Nil(t, manager.CurrentTask())
	assert.Equal(t, int32(0), calls.Load())
}

func TestManager_LoginInProgress(t *testing.T) {
	release := make(chan struct{})
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		<-release
		return tenantSnapshot(), nil
	}}
	manager := newTestManager(&memoryStorage{}, driver, okProfiles())

	first, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	require.Equal(t, models.LoginStarted, first.Status)

	second, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, models.LoginInProgress, second.Status)
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.True(t, manager.LoginInProgress())

	close(release)
	require.NoError(t, manager.Wait(waitCtx(t)))
	assert.False(t, manager.LoginInProgress())
}

func TestManager_LoginProfileError(t *testing.T) {
	resolver := &mockProfiles{ResolveFunc: func(name string) (string, string, error) {
		return "", "", &profiles.ConfigurationError{Profile: name, Reason: "unknown profile"}
	}}
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		t.Fatal("driver must not run with a bad profile")
		return nil, nil
	}}
	manager := newTestManager(&memoryStorage{}, driver, resolver)

	result, err := manager.Login(context.Background(), "nope")
	var cfgErr *profiles.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, models.LoginError, result.Status)
	assert.Contains(t, result.Error, "unknown profile")
	assert.Nil(t, manager.CurrentTask())
}

func TestManager_LoginFailureRecorded(t *testing.T) {
	storage := &memoryStorage{}
	attempts := newMemoryAttempts()
	driverErr := errors.New("login timed out before reaching the tenant dashboard")
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		return nil, driverErr
	}}
	manager := newTestManager(storage, driver, okProfiles(), WithAttemptStorage(attempts))

	var hookCalls atomic.Int32
	manager.OnSessionChange(func() { hookCalls.Add(1) })

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Wait(waitCtx(t)), driverErr)
	assert.False(t, manager.HasSession(context.Background()))
	assert.Equal(t, int32(0), hookCalls.Load())

	attempt, _ := attempts.GetAttempt(context.Background(), result.TaskID)
	assert.Equal(t, models.LoginAttemptFailed, attempt.Status)
	assert.Equal(t, driverErr.Error(), attempt.Error)
}

func TestManager_LogoutCancelsRunningLogin(t *testing.T) {
	storage := &memoryStorage{}
	attempts := newMemoryAttempts()
	started := make(chan struct{})
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		close(started)
		<-ctx.Done()
		// A driver that ignores cancellation and still returns a session must not resurrect it
		return tenantSnapshot(), nil
	}}
	manager := newTestManager(storage, driver, okProfiles(), WithAttemptStorage(attempts))

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	<-started

	require.NoError(t, manager.Logout(context.Background()))

	err = manager.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, manager.HasSession(context.Background()))

	attempt, _ := attempts.GetAttempt(context.Background(), result.TaskID)
	assert.Equal(t, models.LoginAttemptCancelled, attempt.Status)
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	storage := &memoryStorage{snapshot: tenantSnapshot()}
	manager := newTestManager(storage, &mockDriver{}, okProfiles())

	var hookCalls atomic.Int32
	manager.OnSessionChange(func() { hookCalls.Add(1) })

	require.NoError(t, manager.Logout(context.Background()))
	require.NoError(t, manager.Logout(context.Background()))

	assert.False(t, manager.HasSession(context.Background()))
	assert.Equal(t, int32(2), hookCalls.Load())
	assert.False(t, manager.CancelLogin())

	_, err := manager.Bridge(context.Background())
	assert.ErrorIs(t, err, ErrSessionMissing)
}

func TestManager_PanickingHookDoesNotBreakLogout(t *testing.T) {
	manager := newTestManager(&memoryStorage{snapshot: tenantSnapshot()}, &mockDriver{}, okProfiles())

	var after atomic.Bool
	manager.OnSessionChange(func() { panic("bad hook") })
	manager.OnSessionChange(func() { after.Store(true) })

	require.NoError(t, manager.Logout(context.Background()))
	assert.True(t, after.Load())
}

func TestManager_Cleanup(t *testing.T) {
	t.Run("keeps snapshot by default", func(t *testing.T) {
		storage := &memoryStorage{snapshot: tenantSnapshot()}
		manager := newTestManager(storage, &mockDriver{}, okProfiles())

		require.NoError(t, manager.Cleanup(context.Background()))
		assert.True(t, manager.HasSession(context.Background()))
	})

	t.Run("deletes snapshot when configured", func(t *testing.T) {
		storage := &memoryStorage{snapshot: tenantSnapshot()}
		manager := newTestManager(storage, &mockDriver{}, okProfiles(), WithDeleteOnShutdown(true))

		require.NoError(t, manager.Cleanup(context.Background()))
		assert.False(t, manager.HasSession(context.Background()))
	})

	t.Run("cancels running login", func(t *testing.T) {
		driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		manager := newTestManager(&memoryStorage{}, driver, okProfiles())

		_, err := manager.Login(context.Background(), "default")
		require.NoError(t, err)

		require.NoError(t, manager.Cleanup(context.Background()))
		assert.ErrorIs(t, manager.Wait(waitCtx(t)), context.Canceled)
	})
}

func TestManager_WaitWithoutLogin(t *testing.T) {
	manager := newTestManager(&memoryStorage{}, &mockDriver{}, okProfiles())
	assert.NoError(t, manager.Wait(context.Background()))
}

func TestManager_LoginRechecksSessionUnderLock(t *testing.T) {
	storage := &lateCommitStorage{memoryStorage: &memoryStorage{snapshot: tenantSnapshot()}}
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		t.Error("driver must not run when a session is already stored")
		return tenantSnapshot(), nil
	}}
	manager := NewManager(storage, okProfiles(), driver, testTarget(), arbor.NewLogger())

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, models.LoginAlreadyLoggedIn, result.Status)
	assert.Nil(t, manager.CurrentTask())
	assert.Equal(t, int32(2), storage.checks.Load())
}

func TestManager_DriverPanicRecordedAsFailed(t *testing.T) {
	attempts := newMemoryAttempts()
	driver := &mockDriver{LoginFunc: func(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
		panic("browser crashed")
	}}
	manager := newTestManager(&memoryStorage{}, driver, okProfiles(), WithAttemptStorage(attempts))

	result, err := manager.Login(context.Background(), "default")
	require.NoError(t, err)

	err = manager.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")
	assert.False(t, manager.LoginInProgress())

	attempt, err := attempts.GetAttempt(context.Background(), result.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.LoginAttemptFailed, attempt.Status)
	assert.Contains(t, attempt.Error, "browser crashed")
	assert.NotNil(t, attempt.FinishedAt)
}
