package bkash

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UnavailableError marks transport-level failures (network, timeout, 5xx,
// undecodable body). The order is preserved in its prior state and the call
// is safe to retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("bkash %s unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// RejectedError marks an explicit gateway decline (non-success statusCode).
// Not retried automatically.
type RejectedError struct {
	Op            string
	StatusCode    string
	StatusMessage string
	Raw           json.RawMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("bkash %s rejected: %s %s", e.Op, e.StatusCode, e.StatusMessage)
}

// ErrNotConfigured is returned when gateway credentials are absent.
var ErrNotConfigured = errors.New("bkash gateway is not configured")

// IsUnavailable reports whether err is a transport-level gateway failure.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// IsRejected reports whether err is an explicit gateway decline.
func IsRejected(err error) bool {
	var target *RejectedError
	return errors.As(err, &target)
}
