package models

import (
	"encoding/json"
	"time"
)

// LoginState is the operator identity reported by the console's loginState query
type LoginState struct {
	ID          string                 `json:"id"`
	AccountID   string                 `json:"accountID"`
	AccountName string                 `json:"accountName"`
	DisplayName string                 `json:"displayName,omitempty"`
	FirstName   string                 `json:"firstName"`
	LastName    string                 `json:"lastName"`
	Email       string                 `json:"email"`
	Username    string                 `json:"username"`
	Role        string                 `json:"role"`
	AccountType string                 `json:"accountType"`
	Raw         map[string]interface{} `json:"-"`
}

// UnmarshalJSON accepts id and accountID as strings or numbers
func (s *LoginState) UnmarshalJSON(data []byte) error {
	type plain LoginState
	aux := struct {
		*plain
		ID        FlexString `json:"id"`
		AccountID FlexString `json:"accountID"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ID = string(aux.ID)
	s.AccountID = string(aux.AccountID)
	return nil
}

// LoginStatus is the status payload served to the front end
type LoginStatus struct {
	LoggedIn        bool   `json:"logged_in"`
	AccountName     string `json:"account_name"`
	DisplayName     string `json:"account_display_name"`
	Error           string `json:"error"`
	LoginInProgress bool   `json:"login_in_progress"`
}

// Login attempt states
const (
	LoginAttemptRunning   = "running"
	LoginAttemptSucceeded = "succeeded"
	LoginAttemptFailed    = "failed"
	LoginAttemptCancelled = "cancelled"
)

// LoginAttempt is the audit record of one background login
type LoginAttempt struct {
	ID         string     `json:"id" badgerhold:"key"`
	Profile    string     `json:"profile"`
	Driver     string     `json:"driver"`
	Status     string     `json:"status" badgerhold:"index"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Login results returned by the session manager
const (
	LoginStarted         = "started"
	LoginAlreadyLoggedIn = "already_logged_in"
	LoginInProgress      = "in_progress"
	LoginError           = "error"
)

// LoginResult is the immediate outcome of a login request
type LoginResult struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}
