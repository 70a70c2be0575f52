package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/models"
)

// snapshotKey holds the one sealed session snapshot
var snapshotKey = []byte("cmabridge:session:snapshot")

// SessionStorage keeps the sealed session snapshot under a single raw badger key
type SessionStorage struct {
	db     *BadgerDB
	sealer interfaces.Sealer
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, sealer interfaces.Sealer, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		sealer: sealer,
		logger: logger,
	}
}

// SaveSnapshot replaces the stored snapshot wholesale
func (s *SessionStorage) SaveSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	blob, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal session snapshot: %w", err)
	}

	if err := s.db.Raw().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(snapshotKey, blob)
	}); err != nil {
		return fmt.Errorf("failed to store session snapshot: %w", err)
	}

	s.logger.Debug().Int("cookies", len(snapshot.Cookies)).Msg("Session snapshot stored")
	return nil
}

// LoadSnapshot returns the stored snapshot, or nil when none exists
func (s *SessionStorage) LoadSnapshot(ctx context.Context) (*models.SessionSnapshot, error) {
	var blob []byte
	err := s.db.Raw().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session snapshot: %w", err)
	}

	data, err := s.sealer.Open(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to open session snapshot: %w", err)
	}

	var snapshot models.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snapshot, nil
}

// HasSnapshot checks for the key without opening the blob
func (s *SessionStorage) HasSnapshot(ctx context.Context) (bool, error) {
	err := s.db.Raw().View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(snapshotKey)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session snapshot: %w", err)
	}
	return true, nil
}

// DeleteSnapshot removes the stored snapshot; deleting a missing snapshot is not an error
func (s *SessionStorage) DeleteSnapshot(ctx context.Context) error {
	if err := s.db.Raw().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(snapshotKey)
	}); err != nil {
		return fmt.Errorf("failed to delete session snapshot: %w", err)
	}
	return nil
}
