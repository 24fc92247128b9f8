package broker

import (
	"fmt"
	"net/http"
)

// Error represents a failed broker call
type Error struct {
	Type       string // "network", "rate_limit", "http_status", "decode"
	Op         string // "instruments", "orders", "positions"
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("broker %s error on %s: %s (%v)", e.Type, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("broker %s error on %s: %s", e.Type, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether repeating the same idempotent call may succeed
func (e *Error) Retryable() bool {
	switch e.Type {
	case "network", "rate_limit":
		return true
	case "http_status":
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Common error constructors
func NewNetworkError(op, message string, cause error) *Error {
	return &Error{Type: "network", Op: op, Message: message, Cause: cause}
}

func NewRateLimitError(op, message string) *Error {
	return &Error{Type: "rate_limit", Op: op, StatusCode: http.StatusTooManyRequests, Message: message}
}

func NewStatusError(op string, status int, body string) *Error {
	return &Error{Type: "http_status", Op: op, StatusCode: status, Message: fmt.Sprintf("HTTP %d: %s", status, body)}
}

func NewDecodeError(op, message string, cause error) *Error {
	return &Error{Type: "decode", Op: op, Message: message, Cause: cause}
}
