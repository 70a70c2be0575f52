package models

// CredentialProfile is a named set of console credentials read from the profile file.
// A resolved profile never carries an empty value or a placeholder.
type CredentialProfile struct {
	Name     string `json:"name"`
	Email    string `json:"-"`
	Password string `json:"-"`
}
