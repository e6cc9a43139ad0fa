package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants categorize errors for proper handling by callers.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit indicates rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid or expired credentials.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
	// ErrorTypeDecode indicates the client could not parse a response body.
	ErrorTypeDecode
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
		"DECODE",
	}[t]
}

// CodeUnparsed is the client error code used when the library itself could not
// parse a response body.
const CodeUnparsed = -1

// Sentinel errors for common error conditions.
var (
	// ErrNotConnected is returned when writing to a websocket that is not open.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrConnectionClosed is returned when connecting a websocket that already closed.
	ErrConnectionClosed = errors.New("websocket connection closed")
)

// ClientError is a caller-side fault: a 4xx response, or a successful response
// whose body could not be decoded.
type ClientError struct {
	// StatusCode is the HTTP (or websocket reply) status, zero when not applicable.
	StatusCode int `json:"status_code"`
	// Code is the exchange error code, or CodeUnparsed.
	Code int `json:"code"`
	// Message is the exchange message, or the raw body when it could not be parsed.
	Message string `json:"message"`

	cause error
}

// NewClientError creates a ClientError with an exchange-provided code and message.
func NewClientError(statusCode, code int, message string) *ClientError {
	return &ClientError{StatusCode: statusCode, Code: code, Message: message}
}

// NewDecodeError creates a ClientError with CodeUnparsed wrapping the parse failure.
func NewDecodeError(statusCode int, message string, cause error) *ClientError {
	return &ClientError{StatusCode: statusCode, Code: CodeUnparsed, Message: message, cause: cause}
}

func (e *ClientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("client error (%d/%d): %s: %v", e.StatusCode, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("client error (%d/%d): %s", e.StatusCode, e.Code, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.cause
}

// Type maps the exchange code and status to an ErrorType.
func (e *ClientError) Type() ErrorType {
	if e.cause != nil {
		return ErrorTypeDecode
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return ErrorTypeRateLimit
	}
	switch e.Code {
	case -1003, -1015:
		return ErrorTypeRateLimit
	case -1002, -1022, -2014, -2015:
		return ErrorTypeAuthentication
	case -2010:
		return ErrorTypeInsufficientFunds
	case -2011, -2013:
		return ErrorTypeNotFound
	}
	switch {
	case e.Code <= -1100 && e.Code > -1200:
		return ErrorTypeBadRequest
	case e.Code <= -2000 && e.Code > -3000:
		return ErrorTypeInvalidOrder
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrorTypeAuthentication
	case e.StatusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case e.StatusCode == http.StatusBadRequest:
		return ErrorTypeBadRequest
	}
	return ErrorTypeUnknown
}

// ServerError is a server-side fault: any non-2xx, non-4xx response.
type ServerError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// ValidationError is a precondition enforced locally before anything is sent.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// TransportError is a connection-level failure such as a reset, timeout or
// cancellation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRateLimitError returns true if the error is a rate limit violation.
func IsRateLimitError(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Type() == ErrorTypeRateLimit
}

// IsAuthenticationError returns true if the error is an authentication failure.
func IsAuthenticationError(err error) bool {
	var e *ClientError
	return errors.As(err, &e) && e.Type() == ErrorTypeAuthentication
}

// IsTerminalError returns true if retrying the same request cannot succeed.
func IsTerminalError(err error) bool {
	var e *ClientError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type() {
	case ErrorTypeInsufficientFunds, ErrorTypeInvalidOrder, ErrorTypeNotFound:
		return true
	}
	return false
}

// IsServerError returns true if the error is a ServerError.
func IsServerError(err error) bool {
	var e *ServerError
	return errors.As(err, &e)
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsTransportError returns true if the error is a TransportError.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
