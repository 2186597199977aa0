package dispatch

import "errors"

var (
	// ErrUnexpectedStatus is returned when a webhook endpoint responds
	// outside the 2xx range.
	ErrUnexpectedStatus = errors.New("dispatch: unexpected webhook response status")

	// ErrClientRequired is returned when an HTTP sender is constructed
	// without a client.
	ErrClientRequired = errors.New("dispatch: http client is required")
)
