// Package session owns the captured console session: it runs the browser
// login in the background, persists the snapshot and bridges it to plain
// HTTP for the GraphQL executor.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/models"
)

// ProfileResolver resolves a credential profile name to an email and password
type ProfileResolver interface {
	Resolve(name string) (email string, password string, err error)
}

// Option configures a Manager
type Option func(*Manager)

// WithDeleteOnShutdown removes the stored snapshot during Cleanup
func WithDeleteOnShutdown(enabled bool) Option {
	return func(m *Manager) {
		m.deleteOnShutdown = enabled
	}
}

// WithAttemptStorage records every background login
func WithAttemptStorage(attempts interfaces.LoginAttemptStorage) Option {
	return func(m *Manager) {
		m.attempts = attempts
	}
}

// Manager coordinates login, logout and session bridging.
//
// Every write to the session storage is followed, before the write lock is
// released, by the registered change hooks. A login that is cancelled never
// writes its snapshot after the cancellation.
type Manager struct {
	storage  interfaces.SessionStorage
	attempts interfaces.LoginAttemptStorage
	profiles ProfileResolver
	driver   interfaces.LoginDriver
	target   Target
	logger   arbor.ILogger

	deleteOnShutdown bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex // guards task, last and hooks
	task    *LoginTask
	last    *LoginTask
	hooks   []func()
	writeMu sync.Mutex // orders storage writes with hook invocation
}

// NewManager creates a session manager
func NewManager(
	storage interfaces.SessionStorage,
	profiles ProfileResolver,
	driver interfaces.LoginDriver,
	target Target,
	logger arbor.ILogger,
	opts ...Option,
) *Manager {
	rootCtx, rootCancel := context.WithCancel(context.Background())

	m := &Manager{
		storage:    storage,
		profiles:   profiles,
		driver:     driver,
		target:     target,
		logger:     logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnSessionChange registers a hook run synchronously after every login or logout write
func (m *Manager) OnSessionChange(hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// HasSession reports whether a snapshot is stored. It never touches the network.
func (m *Manager) HasSession(ctx context.Context) bool {
	has, err := m.storage.HasSnapshot(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to check stored session")
		return false
	}
	return has
}

// Snapshot returns the current stored snapshot or ErrSessionMissing
func (m *Manager) Snapshot(ctx context.Context) (*models.SessionSnapshot, error) {
	snapshot, err := m.storage.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrSessionMissing
	}
	return snapshot, nil
}

// Bridge builds an HTTP session from the snapshot stored right now
func (m *Manager) Bridge(ctx context.Context) (*BridgedSession, error) {
	snapshot, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return BuildHTTPSession(snapshot, m.target)
}

// Login starts a background browser login for profileName.
//
// It returns already_logged_in when a snapshot exists and in_progress when a
// login is running. Profile errors are returned to the caller; otherwise the
// login runs on its own goroutine and its outcome is observed through
// HasSession and the status endpoint.
func (m *Manager) Login(ctx context.Context, profileName string) (models.LoginResult, error) {
	if m.HasSession(ctx) {
		return models.LoginResult{Status: models.LoginAlreadyLoggedIn}, nil
	}

	m.mu.Lock()
	if m.task != nil {
		id := m.task.ID
		m.mu.Unlock()
		return models.LoginResult{Status: models.LoginInProgress, TaskID: id}, nil
	}
	// A login may have committed and cleared its task since the first check
	if m.HasSession(ctx) {
		m.mu.Unlock()
		return models.LoginResult{Status: models.LoginAlreadyLoggedIn}, nil
	}

	email, password, err := m.profiles.Resolve(profileName)
	if err != nil {
		m.mu.Unlock()
		return models.LoginResult{Status: models.LoginError, Error: err.Error()}, err
	}

	taskCtx, cancel := context.WithCancel(m.rootCtx)
	task := newLoginTask(common.NewLoginTaskID(), profileName, cancel)
	m.task = task
	m.last = task
	m.mu.Unlock()

	m.logger.Info().
		Str("task_id", task.ID).
		Str("profile", profileName).
		Str("email", common.MaskEmail(email)).
		Str("driver", m.driver.Name()).
		Msg("Starting background login")

	common.SafeGo(m.logger, "cmaLogin", func() {
		m.runLogin(taskCtx, task, email, password)
	})

	return models.LoginResult{Status: models.LoginStarted, TaskID: task.ID}, nil
}

func (m *Manager) runLogin(ctx context.Context, task *LoginTask, email, password string) {
	attempt := &models.LoginAttempt{
		ID:        task.ID,
		Profile:   task.Profile,
		Driver:    m.driver.Name(),
		Status:    models.LoginAttemptRunning,
		StartedAt: task.StartedAt,
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("login panicked: %v", r)
			finished := time.Now()
			attempt.FinishedAt = &finished
			attempt.Status = models.LoginAttemptFailed
			attempt.Error = err.Error()
			m.recordAttempt(attempt)
			m.logger.Error().Err(err).Str("task_id", task.ID).Msg("Login failed")
		}
		m.completeTask(task, err)
	}()

	m.recordAttempt(attempt)

	snapshot, err := m.driver.Login(ctx, email, password)
	if err == nil {
		err = m.commitSnapshot(ctx, snapshot)
	}

	finished := time.Now()
	attempt.FinishedAt = &finished
	switch {
	case err == nil:
		attempt.Status = models.LoginAttemptSucceeded
		m.logger.Info().
			Str("task_id", task.ID).
			Dur("duration", finished.Sub(task.StartedAt)).
			Msg("Login completed - session stored")
	case ctx.Err() != nil:
		attempt.Status = models.LoginAttemptCancelled
		attempt.Error = err.Error()
		m.logger.Info().Str("task_id", task.ID).Msg("Login cancelled")
	default:
		attempt.Status = models.LoginAttemptFailed
		attempt.Error = err.Error()
		m.logger.Error().Err(err).Str("task_id", task.ID).Msg("Login failed")
	}
	m.recordAttempt(attempt)
}

// commitSnapshot writes the snapshot unless the login was cancelled, then runs the hooks
func (m *Manager) commitSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if snapshot == nil {
		return errors.New("login driver returned no session")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("login cancelled before the session was stored: %w", err)
	}
	if err := m.storage.SaveSnapshot(context.Background(), snapshot); err != nil {
		return err
	}
	m.runHooks()
	return nil
}

func (m *Manager) completeTask(task *LoginTask, err error) {
	m.mu.Lock()
	if m.task == task {
		m.task = nil
	}
	m.mu.Unlock()

	task.cancel()
	task.finish(err)
}

// Logout cancels a running login, deletes the stored snapshot and runs the hooks. It is idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	m.CancelLogin()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.storage.DeleteSnapshot(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.runHooks()

	m.logger.Info().Msg("Logged out - stored session removed")
	return nil
}

// CurrentTask returns the running login, or nil
func (m *Manager) CurrentTask() *LoginTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task
}

// LoginInProgress reports whether a background login is running
func (m *Manager) LoginInProgress() bool {
	return m.CurrentTask() != nil
}

// CancelLogin cancels the running login, if any, and reports whether one was running
func (m *Manager) CancelLogin() bool {
	task := m.CurrentTask()
	if task == nil {
		return false
	}
	m.logger.Info().Str("task_id", task.ID).Msg("Cancelling background login")
	task.Cancel()
	return true
}

// Wait blocks until the most recent login finishes and returns its outcome
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	task := m.last
	m.mu.Unlock()

	if task == nil {
		return nil
	}

	select {
	case <-task.Done():
		return task.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup stops any running login and, when configured, removes the stored snapshot
func (m *Manager) Cleanup(ctx context.Context) error {
	m.rootCancel()

	if !m.deleteOnShutdown {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.storage.DeleteSnapshot(ctx); err != nil {
		return fmt.Errorf("failed to delete session on shutdown: %w", err)
	}
	m.runHooks()
	m.logger.Info().Msg("Stored session removed on shutdown")
	return nil
}

// runHooks must be called with writeMu held
func (m *Manager) runHooks() {
	m.mu.Lock()
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	for _, hook := range hooks {
		if err := common.RecoverPanic(func() error { hook(); return nil }); err != nil {
			m.logger.Error().Err(err).Msg("Session change hook failed")
		}
	}
}

func (m *Manager) recordAttempt(attempt *models.LoginAttempt) {
	if m.attempts == nil {
		return
	}
	if err := m.attempts.SaveAttempt(context.Background(), attempt); err != nil {
		m.logger.Warn().Err(err).Str("task_id", attempt.ID).Msg("Failed to record login attempt")
	}
}
