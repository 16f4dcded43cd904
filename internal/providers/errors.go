package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBodyLen bounds how much of a vendor error body ends up in messages
const maxErrorBodyLen = 300

// Error is the typed failure every adapter returns. Retryable failures
// (throttling, 5xx, timeouts) let the dispatcher fail over to the next
// provider; terminal ones (bad credentials, malformed requests) do not.
type Error struct {
	Provider   string
	Retryable  bool
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetryableStatus classifies HTTP status codes: 429 and 5xx are retryable
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// AsError extracts the adapter error from err, if any
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// newStatusError builds the error for a non-2xx vendor response
func newStatusError(provider string, status int, body []byte) *Error {
	return &Error{
		Provider:   provider,
		Retryable:  IsRetryableStatus(status),
		StatusCode: status,
		Message:    errorMessage(status, body),
	}
}

// newTransportError classifies failures that never produced an HTTP status.
// Timeouts count as a 504, connection problems as retryable with no status.
func newTransportError(provider string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Provider: provider, Retryable: false, Message: "request cancelled"}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Provider: provider, Retryable: true, StatusCode: http.StatusGatewayTimeout, Message: "request timed out"}
	}
	return &Error{Provider: provider, Retryable: true, Message: fmt.Sprintf("request failed: %v", err)}
}

// newDecodeError is returned when a 2xx response cannot be understood
func newDecodeError(provider string, reason string) *Error {
	return &Error{Provider: provider, Retryable: true, StatusCode: http.StatusBadGateway, Message: reason}
}

// errorMessage pulls the vendor's error text out of the common envelopes
// ({"error":{"message":..}}, {"error":".."}, {"message":".."}).
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}
