package clock

import "time"

// Clock provides the current time and timers.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// AfterFunc calls f in its own goroutine (real) or synchronously during
	// Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer cancels a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the callback from firing. It reports whether the call was pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}

	return t.stopFunc()
}

// Ticker delivers periodic ticks.
type Ticker struct {
	// C receives ticks. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off.
func (t *Ticker) Stop() {
	t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

// Now strips the monotonic reading so that comparisons use wall time.
// Monotonic time stops while the host sleeps; alarms are wall-clock instants.
func (realClock) Now() time.Time {
	return time.Now().Round(0)
}

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)

	return &Timer{stopFunc: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)

	return &Ticker{
		C:        ticker.C,
		stopFunc: ticker.Stop,
	}
}
