package anonymize

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a 2xx reply cannot be decoded or has
// no "anonymized" field.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError wraps failures that happen before an HTTP status is known:
// DNS, refused connections, timeouts, cancelled contexts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is any non-2xx reply. 4xx and 5xx are shown to the user the
// same way; StatusCode is kept for logging.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// FormatError renders err the way the output area shows it.
func FormatError(err error) string {
	return "Error: " + err.Error()
}
