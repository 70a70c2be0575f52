package interfaces

import (
	"context"

	"github.com/ternarybob/cmabridge/internal/models"
)

// LoginDriver drives an interactive browser login and returns the authenticated session.
// Login blocks until the tenant dashboard is reached, the deadline passes or ctx is cancelled.
type LoginDriver interface {
	Name() string
	Login(ctx context.Context, email, password string) (*models.SessionSnapshot, error)
}
