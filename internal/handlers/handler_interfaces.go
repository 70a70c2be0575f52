package handlers

import (
	"context"

	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

// SessionController is the session manager surface used by the CMA handler
type SessionController interface {
	HasSession(ctx context.Context) bool
	Login(ctx context.Context, profileName string) (models.LoginResult, error)
	Logout(ctx context.Context) error
	Bridge(ctx context.Context) (*session.BridgedSession, error)
}

// StatusProvider reports the current login status
type StatusProvider interface {
	GetStatus(ctx context.Context) models.LoginStatus
}

// ProfileLister lists configured credential profile names
type ProfileLister interface {
	Names() ([]string, error)
}

// NamedQueryRunner runs a registered GraphQL operation by name
type NamedQueryRunner interface {
	RunNamed(ctx context.Context, sess *session.BridgedSession, name string, variables map[string]interface{}) (*models.GraphQLEnvelope, error)
}

// TopologyAggregator builds the static route topology
type TopologyAggregator interface {
	Aggregate(ctx context.Context) (*models.TopologyResult, error)
}

// AttemptLister lists recent login attempts
type AttemptLister interface {
	ListAttempts(ctx context.Context, limit int) ([]*models.LoginAttempt, error)
}
