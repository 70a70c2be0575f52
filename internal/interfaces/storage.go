package interfaces

import (
	"context"

	"github.com/ternarybob/cmabridge/internal/models"
)

// SessionStorage persists the single current session snapshot.
// LoadSnapshot returns nil, nil when no snapshot is stored.
type SessionStorage interface {
	SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error
	LoadSnapshot(ctx context.Context) (*models.SessionSnapshot, error)
	HasSnapshot(ctx context.Context) (bool, error)
	DeleteSnapshot(ctx context.Context) error
}

// LoginAttemptStorage keeps the audit trail of background logins
type LoginAttemptStorage interface {
	SaveAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	GetAttempt(ctx context.Context, id string) (*models.LoginAttempt, error)
	ListAttempts(ctx context.Context, limit int) ([]*models.LoginAttempt, error)
	// MarkInterrupted fails attempts left running by a previous process
	MarkInterrupted(ctx context.Context) (int, error)
}

// StorageManager owns the database and exposes the storage interfaces
type StorageManager interface {
	SessionStorage() SessionStorage
	LoginAttemptStorage() LoginAttemptStorage
	Close() error
}

// Sealer encrypts and authenticates data at rest
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}
