package gitclient

import (
	"errors"
	"fmt"
)

// Error taxonomy for remote calls. Callers must treat both as non-fatal to a
// sync pass: Unauthorized means stop retrying that project until it is
// reconfigured, RemoteUnavailable means the next tick naturally retries.
var (
	ErrUnauthorized      = errors.New("gitlab: unauthorized")
	ErrRemoteUnavailable = errors.New("gitlab: remote unavailable")
)

// IsUnauthorized reports whether err classifies as a credential failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRemoteUnavailable reports whether err classifies as a transient
// network/timeout failure.
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// classify wraps a raw client error with the matching sentinel. A non-nil
// HTTP status takes precedence over error text.
func classify(op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if statusCode == 401 || statusCode == 403 {
		return fmt.Errorf("%s: %w: %v", op, ErrUnauthorized, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrRemoteUnavailable, err)
}
