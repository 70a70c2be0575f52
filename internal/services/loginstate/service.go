// Package loginstate answers "who is logged in" for the current console
// session, caching the loginState identity until the session changes.
package loginstate

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/graphql"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

// ErrAccountIDMissing is returned when loginState carries no accountID
var ErrAccountIDMissing = errors.New("accountID not found in loginState response")

// Capture names for the identity query
const (
	StatusCaptureName = "login_state"
)

// SessionSource is the part of the session manager the service needs
type SessionSource interface {
	HasSession(ctx context.Context) bool
	LoginInProgress() bool
	Bridge(ctx context.Context) (*session.BridgedSession, error)
	OnSessionChange(hook func())
}

// QueryRunner executes one GraphQL operation
type QueryRunner interface {
	ExecuteAs(ctx context.Context, sess *session.BridgedSession, captureName, operationName, query string, variables map[string]interface{}) (*models.GraphQLEnvelope, error)
}

// Service reports login status backed by the cache
type Service struct {
	sessions     SessionSource
	runner       QueryRunner
	cache        *Cache
	accountNames map[string]string
	logger       arbor.ILogger

	fetchMu sync.Mutex // serializes cache population
}

// NewService creates the service and invalidates its cache on every session change
func NewService(sessions SessionSource, runner QueryRunner, accountNames map[string]string, logger arbor.ILogger) *Service {
	s := &Service{
		sessions:     sessions,
		runner:       runner,
		cache:        NewCache(),
		accountNames: accountNames,
		logger:       logger,
	}
	sessions.OnSessionChange(s.cache.Invalidate)
	return s
}

// Cache exposes the underlying cache
func (s *Service) Cache() *Cache {
	return s.cache
}

// DisplayName maps an account name to its configured display name, falling back to the name itself
func (s *Service) DisplayName(accountName string) string {
	if accountName == "" {
		return ""
	}
	if display, ok := s.accountNames[accountName]; ok && display != "" {
		return display
	}
	return accountName
}

// GetStatus returns the login status.
// Without a session nothing is fetched. With a session and an empty cache one
// loginState fetch runs; a failed fetch is reported but never cached.
func (s *Service) GetStatus(ctx context.Context) models.LoginStatus {
	inProgress := s.sessions.LoginInProgress()

	if !s.sessions.HasSession(ctx) {
		return models.LoginStatus{LoginInProgress: inProgress}
	}

	if state, _ := s.cache.Get(); state != nil {
		return s.statusFrom(state, inProgress)
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	// Another caller may have populated the cache while we waited
	state, gen := s.cache.Get()
	if state != nil {
		return s.statusFrom(state, inProgress)
	}

	sess, err := s.sessions.Bridge(ctx)
	if err != nil {
		return models.LoginStatus{LoggedIn: true, Error: err.Error(), LoginInProgress: inProgress}
	}

	state, err = s.FetchIdentity(ctx, sess, StatusCaptureName)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch login state")
		return models.LoginStatus{LoggedIn: true, Error: err.Error(), LoginInProgress: inProgress}
	}

	if !s.cache.Store(state, gen) {
		s.logger.Debug().Msg("Session changed during login state fetch, result not cached")
	}
	return s.statusFrom(state, inProgress)
}

// FetchIdentity runs loginState on sess without touching the cache
func (s *Service) FetchIdentity(ctx context.Context, sess *session.BridgedSession, captureName string) (*models.LoginState, error) {
	env, err := s.runner.ExecuteAs(ctx, sess, captureName, graphql.OpLoginState, graphql.LoginStateQuery, graphql.LoginStateVariables())
	if err != nil {
		return nil, err
	}

	state := &models.LoginState{}
	if _, err := graphql.Decode(env, "loginState", state); err != nil {
		return nil, err
	}
	raw := map[string]interface{}{}
	if _, err := graphql.Decode(env, "loginState", &raw); err == nil {
		state.Raw = raw
	}
	state.DisplayName = s.DisplayName(state.AccountName)
	return state, nil
}

func (s *Service) statusFrom(state *models.LoginState, inProgress bool) models.LoginStatus {
	return models.LoginStatus{
		LoggedIn:        true,
		AccountName:     state.AccountName,
		DisplayName:     s.DisplayName(state.AccountName),
		LoginInProgress: inProgress,
	}
}
