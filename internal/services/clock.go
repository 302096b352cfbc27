package services

import "time"

// Clock abstracts time for deadline comparisons so lifecycle decisions are
// testable to the millisecond. The process clock and the store's clock are
// the same in a single-writer deployment; every deadline comparison happens
// immediately next to the conditional insert it guards.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
