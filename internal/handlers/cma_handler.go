package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/graphql"
)

// defaultAttemptLimit is how many login attempts are listed when no limit is given
const defaultAttemptLimit = 20

// CMAHandler serves the console session endpoints
type CMAHandler struct {
	sessions       SessionController
	status         StatusProvider
	profiles       ProfileLister
	queries        NamedQueryRunner
	attempts       AttemptLister
	defaultProfile string
	logger         arbor.ILogger
}

// NewCMAHandler creates the handler; attempts may be nil
func NewCMAHandler(
	sessions SessionController,
	status StatusProvider,
	profiles ProfileLister,
	queries NamedQueryRunner,
	attempts AttemptLister,
	defaultProfile string,
	logger arbor.ILogger,
) *CMAHandler {
	return &CMAHandler{
		sessions:       sessions,
		status:         status,
		profiles:       profiles,
		queries:        queries,
		attempts:       attempts,
		defaultProfile: defaultProfile,
		logger:         logger,
	}
}

// SessionHandler handles GET /api/cma/session
func (h *CMAHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{
		"has_session": h.sessions.HasSession(r.Context()),
	})
}

// StatusHandler handles GET /api/cma/status
func (h *CMAHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.status.GetStatus(r.Context()))
}

type loginRequest struct {
	Profile string `json:"profile"`
}

// LoginHandler handles POST /api/cma/login
func (h *CMAHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile := req.Profile
	if profile == "" {
		profile = h.defaultProfile
	}

	result, err := h.sessions.Login(r.Context(), profile)
	if err != nil {
		h.logger.Warn().Str("profile", profile).Err(err).Msg("Login request rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// LogoutHandler handles POST /api/cma/logout
func (h *CMAHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Logout failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProfilesHandler handles GET /api/cma/profiles
func (h *CMAHandler) ProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	names, err := h.profiles.Names()
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": names,
		"default":  h.defaultProfile,
	})
}

// AttemptsHandler handles GET /api/cma/attempts?limit=N
func (h *CMAHandler) AttemptsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if h.attempts == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"attempts": []*models.LoginAttempt{}})
		return
	}

	limit := defaultAttemptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	attempts, err := h.attempts.ListAttempts(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list login attempts")
		WriteServiceError(w, err)
		return
	}
	if attempts == nil {
		attempts = []*models.LoginAttempt{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

type queryRequest struct {
	Name      string                 `json:"name"`
	Variables map[string]interface{} `json:"variables"`
}

// QueryHandler handles POST /api/cma/query, running a registered operation by name
func (h *CMAHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = graphql.OpLoginState
	}
	if !graphql.IsRegistered(req.Name) {
		WriteServiceError(w, fmt.Errorf("%w: %s", graphql.ErrUnknownOperation, req.Name))
		return
	}

	sess, err := h.sessions.Bridge(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	env, err := h.queries.RunNamed(r.Context(), sess, req.Name, req.Variables)
	if err != nil {
		h.logger.Warn().Str("query", req.Name).Err(err).Msg("Named query failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   envelopeBody(env),
	})
}

// envelopeBody re-assembles the upstream {data, errors} shape
func envelopeBody(env *models.GraphQLEnvelope) map[string]interface{} {
	body := map[string]interface{}{"data": json.RawMessage("null")}
	if env == nil {
		return body
	}
	if len(env.Data) > 0 {
		body["data"] = env.Data
	}
	if len(env.Errors) > 0 {
		body["errors"] = env.Errors
	}
	return body
}
