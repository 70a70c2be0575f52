package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/services/sealer"
	"github.com/ternarybob/cmabridge/internal/storage/badger"
)

// sealLabel binds sealed session blobs to their purpose
const sealLabel = "cmabridge/session-snapshot"

// NewStorageManager opens Badger with a snapshot sealer keyed from [session].key_file
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	s, err := sealer.NewFromKeyFile(config.Session.KeyFile, sealLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to load session key: %w", err)
	}
	return badger.NewManager(logger, &config.Storage.Badger, s)
}
