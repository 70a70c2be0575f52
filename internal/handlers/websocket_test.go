package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
)

func readStatus(t *testing.T, conn *websocket.Conn) models.LoginStatus {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			Status models.LoginStatus `json:"status"`
		} `json:"payload"`
	}
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "cma_status", msg.Type)
	return msg.Payload.Status
}

func TestWebSocketPushesStatusOnSessionChange(t *testing.T) {
	status := &staticStatus{}
	handler := NewWebSocketHandler(status, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readStatus(t, conn)
	assert.False(t, initial.LoggedIn)

	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	status.set(models.LoginStatus{LoggedIn: true, AccountName: "E1"})
	handler.OnSessionChange()

	pushed := readStatus(t, conn)
	assert.True(t, pushed.LoggedIn)
	assert.Equal(t, "E1", pushed.AccountName)
}

func TestWebSocketBroadcastWithoutClients(t *testing.T) {
	handler := NewWebSocketHandler(&staticStatus{}, arbor.NewLogger())
	assert.NotPanics(t, handler.OnSessionChange)
	assert.Equal(t, 0, handler.ClientCount())
}

// countingStatus records how often the status is built
type countingStatus struct {
	calls atomic.Int32
}

func (s *countingStatus) GetStatus(ctx context.Context) models.LoginStatus {
	s.calls.Add(1)
	return models.LoginStatus{}
}

func TestWebSocketNoPushAfterClose(t *testing.T) {
	status := &countingStatus{}
	handler := NewWebSocketHandler(status, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readStatus(t, conn)
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), status.calls.Load())

	handler.Close()
	handler.OnSessionChange()

	// Give a wrongly dispatched push time to run
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), status.calls.Load())
}
