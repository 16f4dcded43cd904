package dispatch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration means no provider is enabled at all
	ErrConfiguration = errors.New("no provider configured")

	// ErrRateLimited is a provider refused by the local rate limiter
	ErrRateLimited = errors.New("provider rate limit reached")

	// ErrProviderTransient is a retryable provider failure
	ErrProviderTransient = errors.New("provider temporarily unavailable")

	// ErrProviderTerminal is a provider failure that retrying elsewhere will not fix
	ErrProviderTerminal = errors.New("provider rejected the request")

	// ErrNoProviderAvailable means no candidate could take the request
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrProviderRejected means the request reached providers and all of them failed
	ErrProviderRejected = errors.New("upstream provider failed")
)

// Error is returned by Generate. Kind is one of the sentinels above and
// Cause, when set, is the last underlying failure.
type Error struct {
	Kind     error
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Provider)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// StatusCode maps the error kind to the HTTP status callers see
func (e *Error) StatusCode() int {
	switch {
	case errors.Is(e.Kind, ErrProviderRejected):
		return http.StatusBadGateway
	case errors.Is(e.Kind, ErrConfiguration), errors.Is(e.Kind, ErrNoProviderAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusCode returns the HTTP status for any error returned by Generate
func StatusCode(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.StatusCode()
	}
	return http.StatusInternalServerError
}

func newError(kind error, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}
