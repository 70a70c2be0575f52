package common

import (
	"github.com/google/uuid"
)

// NewLoginTaskID generates a login task ID with the "login_" prefix
func NewLoginTaskID() string {
	return "login_" + uuid.New().String()
}
