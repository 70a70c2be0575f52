package session

import (
	"context"
	"time"
)

// LoginTask is the handle of one background login, retained by the Manager
type LoginTask struct {
	ID        string
	Profile   string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newLoginTask(id, profile string, cancel context.CancelFunc) *LoginTask {
	return &LoginTask{
		ID:        id,
		Profile:   profile,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Done is closed when the login finishes, whatever the outcome
func (t *LoginTask) Done() <-chan struct{} {
	return t.done
}

// Err returns the login outcome; only meaningful once Done is closed
func (t *LoginTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel asks the login to stop; the driver closes its browser
func (t *LoginTask) Cancel() {
	t.cancel()
}

func (t *LoginTask) finish(err error) {
	t.err = err
	close(t.done)
}
