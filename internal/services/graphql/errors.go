package graphql

import (
	"fmt"
)

// maxErrorBody bounds how much of an upstream body ends up in an error message
const maxErrorBody = 512

// TransportError is a network failure or timeout talking to the endpoint
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a non-2xx response
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// GraphQLError carries the first message of a non-empty errors array
type GraphQLError struct {
	Operation string
	Message   string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: GraphQL error: %s", e.Operation, e.Message)
}

// MalformedResponseError is a 2xx body that is not a usable GraphQL envelope
type MalformedResponseError struct {
	Operation string
	Reason    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Operation, e.Reason)
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
