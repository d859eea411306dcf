// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Clock implements scrape.Clock with UTC wall time.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Or returns clock, or the wall clock when clock is nil.
func Or(clock scrape.Clock) scrape.Clock {
	if clock == nil {
		return Clock{}
	}
	return clock
}
