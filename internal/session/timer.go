package session

import "time"

// refreshTimer is the cancellable background task that pre-refreshes the
// session before expiry. It exists as an explicit object so sign-out can
// deterministically cancel it instead of letting a detached timer fire
// against cleared credentials.
type refreshTimer struct {
	timer *time.Timer
}

// newRefreshTimer arms a timer that calls fire after d. A non-positive d
// fires immediately (still on the timer goroutine, never inline).
func newRefreshTimer(d time.Duration, fire func()) *refreshTimer {
	if d < 0 {
		d = 0
	}

	return &refreshTimer{timer: time.AfterFunc(d, fire)}
}

// Stop cancels the timer. Safe to call more than once; a nil receiver is a
// no-op so callers need not guard the first schedule.
func (t *refreshTimer) Stop() {
	if t == nil {
		return
	}

	t.timer.Stop()
}
