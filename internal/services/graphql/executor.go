// Package graphql executes GraphQL operations against the tenant console
// endpoint using a bridged browser session.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/capture"
	"github.com/ternarybob/cmabridge/internal/services/session"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one request when the bridged client has none
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second against the console
	DefaultRateLimit = 5

	// maxResponseBody caps what is read from the upstream
	maxResponseBody = 16 << 20
)

// ErrUnknownOperation is returned by RunNamed for names outside the registry
var ErrUnknownOperation = errors.New("unsupported query")

// Executor posts GraphQL operations through a bridged session
type Executor struct {
	logger  arbor.ILogger
	limiter *rate.Limiter
	capture *capture.Safe
	timeout time.Duration
}

// Option configures the Executor
type Option func(*Executor)

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRateLimit sets requests per second; zero or less disables limiting
func WithRateLimit(requestsPerSecond int) Option {
	return func(e *Executor) {
		if requestsPerSecond <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithCapture hands every completed response to c
func WithCapture(c *capture.Safe) Option {
	return func(e *Executor) {
		e.capture = c
	}
}

// WithTimeout bounds each request
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewExecutor creates an executor
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = common.GetLogger()
	}
	if e.capture == nil {
		e.capture = capture.NewSafe(nil, e.logger)
	}
	return e
}

// Execute runs one operation and captures the response under its operation name
func (e *Executor) Execute(ctx context.Context, sess *session.BridgedSession, operationName, query string, variables map[string]interface{}) (*models.GraphQLEnvelope, error) {
	return e.ExecuteAs(ctx, sess, operationName, operationName, query, variables)
}

// ExecuteAs runs one operation and captures the response under captureName
func (e *Executor) ExecuteAs(ctx context.Context, sess *session.BridgedSession, captureName, operationName, query string, variables map[string]interface{}) (*models.GraphQLEnvelope, error) {
	if sess == nil {
		return nil, session.ErrSessionMissing
	}
	if variables == nil {
		variables = map[string]interface{}{}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Operation: operationName, Err: fmt.Errorf("rate limit exceeded: %w", err)}
	}

	payload, err := json.Marshal(models.GraphQLRequest{
		OperationName: operationName,
		Variables:     variables,
		Query:         query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", operationName, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sess.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = sess.NewRequestHeader()

	start := time.Now()
	resp, err := sess.Client.Do(req)
	if err != nil {
		e.capture.Record(captureName, failurePayload(0, "", err))
		e.logger.Warn().Str("operation", operationName).Err(err).Msg("GraphQL request failed")
		return nil, &TransportError{Operation: operationName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		e.capture.Record(captureName, failurePayload(resp.StatusCode, "", err))
		return nil, &TransportError{Operation: operationName, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	e.logger.Debug().
		Str("operation", operationName).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("GraphQL response received")

	var parsed interface{}
	parseErr := json.Unmarshal(body, &parsed)
	if parseErr == nil {
		e.capture.Record(captureName, parsed)
	} else {
		e.capture.Record(captureName, failurePayload(resp.StatusCode, string(body), parseErr))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Operation: operationName, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	return decodeEnvelope(operationName, body)
}

// RunNamed runs a registered operation; loginState gets its default variables when none are given
func (e *Executor) RunNamed(ctx context.Context, sess *session.BridgedSession, name string, variables map[string]interface{}) (*models.GraphQLEnvelope, error) {
	q, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if len(variables) == 0 && q.defaults != nil {
		variables = q.defaults()
	}
	return e.Execute(ctx, sess, name, q.query, variables)
}

func decodeEnvelope(operationName string, body []byte) (*models.GraphQLEnvelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &MalformedResponseError{Operation: operationName, Reason: "body is not a JSON object"}
	}

	env := &models.GraphQLEnvelope{Data: fields["data"]}
	if raw, ok := fields["errors"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &env.Errors); err != nil {
			return nil, &MalformedResponseError{Operation: operationName, Reason: "errors is not an array"}
		}
	}

	if len(env.Errors) > 0 {
		msg := env.Errors[0].Message
		if msg == "" {
			msg = "GraphQL error"
		}
		return env, &GraphQLError{Operation: operationName, Message: msg}
	}

	if _, ok := fields["data"]; !ok {
		return nil, &MalformedResponseError{Operation: operationName, Reason: "no data in response"}
	}
	return env, nil
}

// Decode unmarshals data.<field> into out. A missing or null field leaves out untouched
// and reports false.
func Decode(env *models.GraphQLEnvelope, field string, out interface{}) (bool, error) {
	if env == nil || isNull(env.Data) {
		return false, nil
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return false, fmt.Errorf("data is not an object: %w", err)
	}
	raw, ok := data[field]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", field, err)
	}
	return true, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func failurePayload(status int, body string, err error) map[string]interface{} {
	payload := map[string]interface{}{
		"status": status,
		"body":   body,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	return payload
}
