package authorize

import "errors"

var (
	// ErrProviderUnavailable signals a failed authorization attempt.
	ErrProviderUnavailable = errors.New("authorize: provider unavailable")
)
