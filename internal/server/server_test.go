package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/app"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/handlers"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

type noSessions struct{}

func (noSessions) HasSession(ctx context.Context) bool { return false }
func (noSessions) Login(ctx context.Context, profileName string) (models.LoginResult, error) {
	return models.LoginResult{Status: models.LoginStarted}, nil
}
func (noSessions) Logout(ctx context.Context) error { return nil }
func (noSessions) Bridge(ctx context.Context) (*session.BridgedSession, error) {
	return nil, session.ErrSessionMissing
}

type loggedOut struct{}

func (loggedOut) GetStatus(ctx context.Context) models.LoginStatus { return models.LoginStatus{} }

type noProfiles struct{}

func (noProfiles) Names() ([]string, error) { return nil, nil }

type noQueries struct{}

func (noQueries) RunNamed(ctx context.Context, sess *session.BridgedSession, name string, variables map[string]interface{}) (*models.GraphQLEnvelope, error) {
	return nil, nil
}

type noTopology struct{}

func (noTopology) Aggregate(ctx context.Context) (*models.TopologyResult, error) {
	return nil, session.ErrSessionMissing
}

func newTestServer() *Server {
	logger := arbor.NewLogger()
	application := &app.App{
		Config:         common.NewDefaultConfig(),
		Logger:         logger,
		APIHandler:     handlers.NewAPIHandler(logger),
		CMAHandler:     handlers.NewCMAHandler(noSessions{}, loggedOut{}, noProfiles{}, noQueries{}, nil, "", logger),
		NetworkHandler: handlers.NewNetworkHandler(noTopology{}, logger),
		WSHandler:      handlers.NewWebSocketHandler(loggedOut{}, logger),
	}
	return New(application)
}

func TestRoutes(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/version", http.StatusOK},
		{http.MethodGet, "/api/cma/session", http.StatusOK},
		{http.MethodGet, "/api/cma/status", http.StatusOK},
		{http.MethodGet, "/api/cma/login", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/cma/query", http.StatusUnauthorized},
		{http.MethodGet, "/api/network/static-route/init", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/cma/login", http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestShutdownHandler(t *testing.T) {
	srv := newTestServer()
	ch := make(chan struct{})
	srv.SetShutdownChannel(ch)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shutdown", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("shutdown channel not closed")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer()
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
}
