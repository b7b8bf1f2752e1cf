package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidAdminKey is returned for a key not in "<id>:<secret>" hex form.
	ErrInvalidAdminKey = errors.New("invalid admin API key")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx Admin API response.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Message, Context and Type come from the first entry of the
	// response's "errors" array when present.
	Message string
	Context string
	Type    string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("ghost %s error (status %d): %s: %v", e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("ghost %s error (status %d): %s", e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
		Context string `json:"context"`
		Type    string `json:"type"`
	} `json:"errors"`
}

// newAPIError builds an APIError from resp and closes its body.
func newAPIError(resp *http.Response, class ErrorClass) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && len(body.Errors) > 0 {
		first := body.Errors[0]
		if first.Message != "" {
			apiErr.Message = first.Message
		}
		apiErr.Context = first.Context
		apiErr.Type = first.Type
	}
	return apiErr
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors are the caller's fault and fail the same way again
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		// 429, retried once the Retry-After block has passed
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
