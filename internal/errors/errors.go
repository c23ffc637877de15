package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EdgeError is an error that can be rendered to clients as JSON.
type EdgeError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *EdgeError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *EdgeError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response. Base singletons
// (no details or request id) use pre-serialized bytes to avoid allocations.
func (e *EdgeError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Common errors surfaced by the gateway.
var (
	ErrNotFound = &EdgeError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrMethodNotAllowed = &EdgeError{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
	}

	ErrTooManyRequests = &EdgeError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
	}

	ErrBadGateway = &EdgeError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}

	ErrServiceUnavailable = &EdgeError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}

	ErrGatewayTimeout = &EdgeError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway Timeout",
	}

	ErrInternalServer = &EdgeError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// preSerialized holds JSON-encoded bytes for the base error singletons.
var preSerialized map[*EdgeError][]byte

func init() {
	bases := []*EdgeError{
		ErrNotFound, ErrMethodNotAllowed, ErrTooManyRequests,
		ErrBadGateway, ErrServiceUnavailable, ErrGatewayTimeout,
		ErrInternalServer,
	}
	preSerialized = make(map[*EdgeError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new EdgeError.
func New(code int, message string) *EdgeError {
	return &EdgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new EdgeError wrapping an underlying error.
func Wrap(code int, message string, err error) *EdgeError {
	return &EdgeError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails returns a copy of the error with details attached.
func (e *EdgeError) WithDetails(details string) *EdgeError {
	clone := *e
	clone.Details = details
	return &clone
}

// WithRequestID returns a copy of the error with a request id attached.
func (e *EdgeError) WithRequestID(id string) *EdgeError {
	clone := *e
	clone.RequestID = id
	return &clone
}

// FromStatus maps an upstream status code to the matching EdgeError.
func FromStatus(status int) *EdgeError {
	switch status {
	case http.StatusBadGateway:
		return ErrBadGateway
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrGatewayTimeout
	default:
		if status >= 500 {
			return ErrBadGateway
		}
		return New(status, http.StatusText(status))
	}
}
