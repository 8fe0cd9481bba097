package quoteclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrCancelled is returned when the caller cancels an in-flight request.
// It wraps context.Canceled and is never surfaced to the user.
var ErrCancelled = fmt.Errorf("quote request cancelled: %w", context.Canceled)

// RemoteError is a failure reported by, or on the way to, the pricing
// service. StatusCode is 0 for transport failures and timeouts.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// InvalidResponseError is returned when the service answered successfully
// but the body does not describe a usable quote.
type InvalidResponseError struct {
	Reason string
	Err    error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// Messages used for malformed responses.
const (
	MsgInvalidResponse = "Invalid response from inscription service"
	MsgInvalidAmount   = "Invalid inscription amount received from service"
	MsgRequestFailed   = "Failed to create inscription commit"
)

// UserMessage returns the text to show for a quote failure, or "" for
// cancellations.
func UserMessage(err error) string {
	if err == nil || errors.Is(err, ErrCancelled) {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	var invalid *InvalidResponseError
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	return MsgRequestFailed
}

// StatusCode returns the HTTP status to relay for err. Errors that did not
// come from the remote side map to 500.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.StatusCode != 0 {
		return remote.StatusCode
	}
	if errors.As(err, &remote) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
