package retry

import "time"

// Clock abstracts wall-clock time and timer arming so retry logic is
// testable without real waits.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc arms a timer that calls f after d elapses.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is an armed delayed call.
type Timer interface {
	// Stop disarms the timer. It reports whether the call was prevented.
	Stop() bool
}

// realClock implements Clock with the time package.
type realClock struct{}

// NewClock returns the wall-clock implementation of Clock.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
