package redis

import "errors"

var (
	// ErrClientRequired is returned when a nil redis client is provided.
	ErrClientRequired = errors.New("stream redis: client is required")
)
