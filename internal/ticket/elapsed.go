package ticket

import "time"

// RunningElapsed returns the elapsed seconds of a running ticket at now:
// the stored checkpoint plus the whole seconds since progressAt. A nil
// progressAt means the ticket is not running and stored is returned as is.
func RunningElapsed(stored int, progressAt *time.Time, now time.Time) int {
	if progressAt == nil {
		return stored
	}
	delta := now.Sub(*progressAt)
	if delta <= 0 {
		return stored
	}
	return stored + int(delta/time.Second)
}

// ClampElapsed bounds a server-computed elapsed value. The result never
// drops below stored and, when allotment is positive, never exceeds it
// unless stored already does.
func ClampElapsed(computed, stored, allotment int) int {
	if allotment > 0 && computed > allotment {
		computed = allotment
	}
	if computed < stored {
		return stored
	}
	return computed
}

// Remaining returns the seconds left of an allotment, never negative.
func Remaining(allotment, elapsed int) int {
	if elapsed >= allotment {
		return 0
	}
	return allotment - elapsed
}
