// Package errors provides error types and handling for the gallery scanner.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Validation represents a malformed or disallowed URL, rejected before
	// any network call.
	Validation
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// ServerError represents 5xx responses from the listing endpoint.
	ServerError
	// ClientError represents 4xx responses from the listing endpoint.
	ClientError
	// Parse represents listing parse errors (HTML, JSON).
	Parse
	// Cache represents cache backend failures. Absorbed at the cache client
	// boundary; never surfaced to callers.
	Cache
	// Token represents token issuer misconfiguration.
	Token
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Validation:
		return "validation"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Parse:
		return "parse"
	case Cache:
		return "cache"
	case Token:
		return "token"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTransient reports whether errors of this type are expected to clear on a
// later scan without operator action.
func (t ErrorType) IsTransient() bool {
	switch t {
	case Network, Timeout, ServerError, Cache:
		return true
	default:
		return false
	}
}

// ScanError represents a categorized scan error.
type ScanError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new ScanError.
func New(errType ErrorType, url, operation, message string, cause error) *ScanError {
	return &ScanError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewValidationError creates a validation error for a rejected URL.
func NewValidationError(url, reason string) *ScanError {
	return New(Validation, url, "validate", reason, nil)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ScanError {
	return New(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ScanError {
	return New(Timeout, url, operation, "request timed out", cause)
}

// NewServerError creates a server error.
func NewServerError(url string, statusCode int) *ScanError {
	err := New(ServerError, url, "fetch", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewClientError creates a client error.
func NewClientError(url string, statusCode int) *ScanError {
	err := New(ClientError, url, "fetch", fmt.Sprintf("listing returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *ScanError {
	return New(Parse, url, operation, "parsing failed", cause)
}

// NewCacheError creates a cache backend error.
func NewCacheError(operation string, cause error) *ScanError {
	return New(Cache, "", operation, "cache backend failure", cause)
}

// NewTokenError creates a token misconfiguration error.
func NewTokenError(message string) *ScanError {
	return New(Token, "", "sign", message, nil)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ScanError {
	return New(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *ScanError {
	if err == nil {
		return nil
	}

	// Already a ScanError
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "fetch")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "fetch", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "fetch", err)
	}

	return New(Unknown, url, "fetch", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code, or nil for
// success statuses.
func CategorizeHTTPStatus(statusCode int, url string) *ScanError {
	switch {
	case statusCode >= 500:
		return NewServerError(url, statusCode)
	case statusCode >= 400:
		return NewClientError(url, statusCode)
	default:
		return nil
	}
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsTransient checks if an error is expected to clear on a later scan.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type.IsTransient()
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsValidationError checks if an error is a validation rejection.
func IsValidationError(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == Validation
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return Unknown
}
