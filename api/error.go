package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced by the client.  Codes coming back from the backend in
// a structured error payload are passed through untouched; these are the
// values the client itself assigns.
const (
	CodeUnknownError = "UNKNOWN_ERROR"
	CodeNetworkError = "NETWORK_ERROR"
	CodeRequestError = "REQUEST_ERROR"
)

// Error is the single error shape callers of Client see.  Every transport or
// server failure is normalized into one of these; raw *url.Error or decode
// errors never escape the client.
type Error struct {
	// Status is the HTTP status of the response, or 0 when no response was
	// received (network failure, unbuildable request).
	Status int

	// Message is a human readable description, preferring the backend's
	// structured error message when one was sent.
	Message string

	// Code is a stable machine readable code.
	Code string

	cause error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsAuthError reports whether err is a normalized 401/403 response.
func IsAuthError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// errorBody is the backend's error payload.  The structured form nests
// message and code under "error"; older endpoints use a flat "detail" field.
type errorBody struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Detail string `json:"detail"`
}

// normalizeResponseError builds an *Error from a non-2xx response body.  It
// prefers the structured error fields, falls back to the flat detail field,
// and finally to a generic message and code.
func normalizeResponseError(status int, body []byte) *Error {
	e := &Error{
		Status:  status,
		Message: "request failed",
		Code:    CodeUnknownError,
	}
	if len(body) == 0 {
		return e
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return e
	}
	switch {
	case parsed.Error != nil && parsed.Error.Message != "":
		e.Message = parsed.Error.Message
	case parsed.Detail != "":
		e.Message = parsed.Detail
	}
	if parsed.Error != nil && parsed.Error.Code != "" {
		e.Code = parsed.Error.Code
	}
	return e
}

func networkError(cause error) *Error {
	return &Error{
		Status:  0,
		Message: "network error",
		Code:    CodeNetworkError,
		cause:   cause,
	}
}

func requestError(cause error) *Error {
	return &Error{
		Status:  0,
		Message: "request configuration error",
		Code:    CodeRequestError,
		cause:   cause,
	}
}
