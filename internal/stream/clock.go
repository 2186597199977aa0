package stream

import "time"

// Clock supplies the current time. Components take a Clock instead of
// calling time.Now so tests can pin timestamps and claim-idle decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
