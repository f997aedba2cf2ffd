// Package clock abstracts the system clock behind a cancellable-timer
// interface so timer-driven control flow can run against a virtual clock
// in tests.
package clock

import "time"

// Timer is a handle to a pending callback. Stop is safe to call even if
// the timer already fired; it reports whether the firing was prevented.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and one-shot callback timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// System returns a Clock backed by the runtime's real timers.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }
