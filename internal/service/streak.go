package service

import "time"

// DefaultStreakCycle is the streak length that wraps back to zero.
const DefaultStreakCycle = 7

// NextStreak computes the login streak for a login at now, given the day the
// streak was last updated and its value. Days are compared at UTC midnight:
// the same day leaves the streak unchanged, the following day extends it by
// one, anything else restarts it at one. Reaching cycle wraps to zero.
// The second result reports whether the streak needs to be stored.
func NextStreak(last *time.Time, current int, now time.Time, cycle int) (int, bool) {
	if cycle <= 0 {
		cycle = DefaultStreakCycle
	}
	today := utcDay(now)

	if last != nil {
		lastDay := utcDay(*last)
		if lastDay.Equal(today) {
			return current, false
		}
		if lastDay.AddDate(0, 0, 1).Equal(today) {
			next := current + 1
			if next >= cycle {
				next = 0
			}
			return next, true
		}
	}

	if 1 >= cycle {
		return 0, true
	}
	return 1, true
}
