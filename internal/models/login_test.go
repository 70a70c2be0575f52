package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStateUnmarshalIDs(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantID        string
		wantAccountID string
	}{
		{"strings", `{"id":"u1","accountID":"42","accountName":"E1"}`, "u1", "42"},
		{"numbers", `{"id":7,"accountID":12345,"accountName":"E1"}`, "7", "12345"},
		{"null", `{"id":null,"accountID":null,"accountName":"E1"}`, "", ""},
		{"missing", `{"accountName":"E1"}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var state LoginState
			require.NoError(t, json.Unmarshal([]byte(tt.input), &state))
			assert.Equal(t, tt.wantID, state.ID)
			assert.Equal(t, tt.wantAccountID, state.AccountID)
			assert.Equal(t, "E1", state.AccountName)
		})
	}
}
