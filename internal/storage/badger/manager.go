package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	session  interfaces.SessionStorage
	attempts interfaces.LoginAttemptStorage
	logger   arbor.ILogger
}

// NewManager opens the database and wires the storage implementations
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, sealer interfaces.Sealer) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		session:  NewSessionStorage(db, sealer, logger),
		attempts: NewLoginAttemptStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// SessionStorage returns the session snapshot storage
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// LoginAttemptStorage returns the login attempt storage
func (m *Manager) LoginAttemptStorage() interfaces.LoginAttemptStorage {
	return m.attempts
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
