package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for catalogue registration.
var (
	// ErrInsertRejected means the catalogue answered but did not insert the record.
	ErrInsertRejected = errors.New("catalog rejected record insertion")

	// ErrUnexpectedResponse means the response body could not be understood.
	ErrUnexpectedResponse = errors.New("unexpected catalog response")
)

// ExceptionError is an OWS ExceptionReport returned by the catalogue.
type ExceptionError struct {
	Code    string
	Locator string
	Text    string
}

func (e *ExceptionError) Error() string {
	var b strings.Builder
	b.WriteString("catalog exception")
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Locator != "" {
		b.WriteString(" at " + e.Locator)
	}
	if e.Text != "" {
		b.WriteString(": " + e.Text)
	}
	return b.String()
}

// StatusError is a non-2xx HTTP response without an exception report.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
