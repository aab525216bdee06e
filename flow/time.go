package flow

import "time"

// TimeProvider abstracts the wall clock so estimator-driven behavior can
// be tested deterministically.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}
