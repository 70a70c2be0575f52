package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LoginAttemptStorage implements the LoginAttemptStorage interface for Badger
type LoginAttemptStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLoginAttemptStorage creates a new LoginAttemptStorage instance
func NewLoginAttemptStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LoginAttemptStorage {
	return &LoginAttemptStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LoginAttemptStorage) SaveAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		return fmt.Errorf("login attempt ID is required")
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now()
	}

	if err := s.db.Store().Upsert(attempt.ID, attempt); err != nil {
		return fmt.Errorf("failed to store login attempt: %w", err)
	}
	return nil
}

func (s *LoginAttemptStorage) GetAttempt(ctx context.Context, id string) (*models.LoginAttempt, error) {
	var attempt models.LoginAttempt
	if err := s.db.Store().Get(id, &attempt); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("login attempt not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get login attempt: %w", err)
	}
	return &attempt, nil
}

// ListAttempts returns the most recent attempts first; limit <= 0 returns all
func (s *LoginAttemptStorage) ListAttempts(ctx context.Context, limit int) ([]*models.LoginAttempt, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var attempts []models.LoginAttempt
	if err := s.db.Store().Find(&attempts, query); err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}

	result := make([]*models.LoginAttempt, len(attempts))
	for i := range attempts {
		result[i] = &attempts[i]
	}
	return result, nil
}

func (s *LoginAttemptStorage) MarkInterrupted(ctx context.Context) (int, error) {
	var running []models.LoginAttempt
	if err := s.db.Store().Find(&running, badgerhold.Where("Status").Eq(models.LoginAttemptRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running login attempts: %w", err)
	}

	now := time.Now()
	for i := range running {
		attempt := &running[i]
		attempt.Status = models.LoginAttemptFailed
		attempt.Error = "interrupted by restart"
		attempt.FinishedAt = &now
		if err := s.db.Store().Upsert(attempt.ID, attempt); err != nil {
			return i, fmt.Errorf("failed to update login attempt %s: %w", attempt.ID, err)
		}
	}

	if len(running) > 0 {
		s.logger.Info().Int("count", len(running)).Msg("Marked interrupted login attempts as failed")
	}
	return len(running), nil
}
