package globaltime

import (
	"time"
)

// Clock supplies the current time. Services take a Clock so tests can pin "now"
// without mutating process-wide state.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t: t} }

// UTC is the wall clock in UTC.
func UTC() time.Time {
	return time.Now().UTC()
}

// NowUTC reads c in UTC, falling back to the wall clock when c is nil.
func NowUTC(c Clock) time.Time {
	if c == nil {
		return UTC()
	}
	return c.Now().UTC()
}
