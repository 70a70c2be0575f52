package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ternarybob/cmabridge/internal/services/graphql"
	"github.com/ternarybob/cmabridge/internal/services/profiles"
	"github.com/ternarybob/cmabridge/internal/services/session"
	"github.com/ternarybob/cmabridge/internal/services/topology"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
// The text is sent as both "error" and "message"; older front ends read "message".
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status":  "error",
		"error":   message,
		"message": message,
	})
}

// WriteServiceError maps err onto a status code and writes the error response
func WriteServiceError(w http.ResponseWriter, err error) error {
	return WriteError(w, StatusForError(err), err.Error())
}

// StatusForError maps the service error taxonomy to HTTP status codes
func StatusForError(err error) int {
	var configErr *profiles.ConfigurationError
	var transportErr *graphql.TransportError
	var statusErr *graphql.HTTPStatusError
	var gqlErr *graphql.GraphQLError
	var malformedErr *graphql.MalformedResponseError
	var stepErr *topology.StepError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &configErr), errors.Is(err, graphql.ErrUnknownOperation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionMissing):
		return http.StatusUnauthorized
	case errors.As(err, &stepErr),
		errors.As(err, &transportErr),
		errors.As(err, &statusErr),
		errors.As(err, &gqlErr),
		errors.As(err, &malformedErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON body into out; an empty body leaves out untouched
func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %w", err)
}
