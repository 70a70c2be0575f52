package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

func TestWriteServiceErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, fmt.Errorf("bridge: %w", session.ErrSessionMissing))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeResponse(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, body["error"], body["message"])
	assert.Contains(t, body["message"], session.ErrSessionMissing.Error())
}
