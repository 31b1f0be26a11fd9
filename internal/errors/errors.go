// Package apperrors renders transport errors as the JSON envelope
// {"error":{"code","message","request_id","details"}}.
package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Envelope codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeUnprocessable       = "UNPROCESSABLE_ENTITY"
	CodeInternal            = "INTERNAL_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// ErrorBody is the payload under "error".
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the wire shape of every transport error.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HTTPError carries a status and envelope code through handler code.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// New returns an HTTPError.
func New(status int, code, message string) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying details.
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	c := *e
	c.Details = details
	return &c
}

// Wrap returns a copy of e with err as its cause. The cause is never
// rendered.
func (e *HTTPError) Wrap(err error) *HTTPError {
	c := *e
	c.Err = err
	return &c
}

func BadRequest(message string) *HTTPError {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func NotFound(message string) *HTTPError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func Unprocessable(message string) *HTTPError {
	return New(http.StatusUnprocessableEntity, CodeUnprocessable, message)
}

// WriteError writes the envelope with the request ID taken from r.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := HTTPErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		body.Error.RequestID = middleware.GetReqID(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RespondWithError renders err. An *HTTPError keeps its status and code;
// anything else becomes a 500 without internal detail.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var he *HTTPError
	if errors.As(err, &he) {
		WriteError(w, r, he.Status, he.Code, he.Message, he.Details)
		return
	}
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}
