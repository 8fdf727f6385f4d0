package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies client errors.
type ErrorKind int

const (
	ErrConfig         ErrorKind = iota // misconfiguration (missing API key, bad base URL)
	ErrCaller                          // invalid local state or request parameters
	ErrToolLoop                        // tool loop iteration cap exceeded
	ErrTransport                       // connection or timeout failure
	ErrDecode                          // response body does not match the expected schema
	ErrAuthentication                  // 401/403
	ErrInvalidRequest                  // 400 and other non-retryable 4xx
	ErrNotFound                        // 404
	ErrRateLimit                       // 429
	ErrServer                          // 500+
)

var errorKindNames = [...]string{
	ErrConfig:         "config",
	ErrCaller:         "caller",
	ErrToolLoop:       "tool_loop",
	ErrTransport:      "transport",
	ErrDecode:         "decode",
	ErrAuthentication: "authentication",
	ErrInvalidRequest: "invalid_request",
	ErrNotFound:       "not_found",
	ErrRateLimit:      "rate_limit",
	ErrServer:         "server",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// Error is the library's error type.
type Error struct {
	Kind       ErrorKind
	Type       string // provider-reported error type, e.g. "overloaded_error"
	Message    string
	StatusCode int    // HTTP status when the error came from an API response
	Cause      error  // underlying error
	Raw        []byte // raw response body if available
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic [%s] %s: %s", e.Kind, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error represents a transient condition that a
// bounded retry may resolve. Caller errors, auth failures, invalid requests,
// and decode failures are never retryable.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrRateLimit, ErrServer, ErrTransport:
		return true
	default:
		return false
	}
}

func callerError(format string, args ...any) *Error {
	return &Error{Kind: ErrCaller, Message: fmt.Sprintf(format, args...)}
}

// apiErrorEnvelope is the API's error body: {"type":"error","error":{...}}.
type apiErrorEnvelope struct {
	Type  string         `json:"type"`
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// classifyStatus maps a non-2xx HTTP response to an *Error, parsing the API
// error envelope when the body carries one.
func classifyStatus(statusCode int, body []byte) *Error {
	var kind ErrorKind
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = ErrAuthentication
	case statusCode == http.StatusNotFound:
		kind = ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		kind = ErrRateLimit
	case statusCode >= 500:
		kind = ErrServer
	default:
		kind = ErrInvalidRequest
	}

	e := &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Raw:        body,
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		e.Type = envelope.Error.Type
		e.Message = envelope.Error.Message
	} else {
		e.Message = fmt.Sprintf("status %d: %s", statusCode, strings.TrimSpace(string(body)))
	}

	return e
}
