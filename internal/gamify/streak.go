// Package gamify implements the study streak and points rules. The streak is
// a pure function of dates so it can be applied inside whatever transaction
// records the session.
package gamify

import "time"

// PointsPerSession is the flat award for recording a study session. It does
// not scale with duration and is granted even when the streak is unchanged.
const PointsPerSession = 10

// NextStreak computes the streak after a session on sessionDate, given the
// user's previous study date and current streak. Only the UTC calendar date
// matters, never the time of day.
//
//   - same day as lastStudy: streak unchanged (repeat study does not stack)
//   - no previous study: 1
//   - exactly the next calendar day: current + 1
//   - anything else (gap, or an out-of-order earlier date): reset to 1
func NextStreak(lastStudy *time.Time, sessionDate time.Time, current int) int {
	if lastStudy == nil {
		return 1
	}

	last := dateOnly(*lastStudy)
	session := dateOnly(sessionDate)

	if session.Equal(last) {
		return current
	}
	if session.Equal(last.AddDate(0, 0, 1)) {
		return current + 1
	}
	return 1
}

// dateOnly truncates t to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
