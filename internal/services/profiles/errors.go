package profiles

import "fmt"

// ConfigurationError reports missing or unusable profile data.
// It is fatal to the triggering call and its message is surfaced verbatim.
type ConfigurationError struct {
	Profile string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Profile != "" {
		msg = fmt.Sprintf("profile %q: %s", e.Profile, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(profile, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Profile: profile, Reason: reason, Err: err}
}
