package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed API call: either the request never completed (Err is
// set) or the server answered with a non-2xx status.
type Error struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s (%d): %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s (%d): %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err (or any error in its chain) is an
// API Error.
func IsNetworkError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// IsUnauthorized reports whether the server rejected the session.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

// IsNotFound reports whether the server does not know the user.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// UserMessage returns a short explanation suitable for the status bar.
func UserMessage(err error) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch {
	case apiErr.StatusCode == 0:
		return "Could not reach the server. Check your connection and try again."
	case IsUnauthorized(err):
		return "Your session was rejected. Log in again."
	case IsNotFound(err):
		return "The server does not know this user: " + apiErr.Message
	default:
		return fmt.Sprintf("API error (%d): %s", apiErr.StatusCode, apiErr.Message)
	}
}
