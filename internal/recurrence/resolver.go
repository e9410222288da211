// Package recurrence computes alarm trigger instants from weekday rules.
// Everything here is pure: callers pass the current instant explicitly.
package recurrence

import "time"

// scanWindow bounds the forward scan over candidate days. Every weekday in a
// non-empty set recurs within 7 days, so 8 covers today plus a full week.
const scanWindow = 8

// NextOccurrence returns the next instant at which an alarm for a task with
// the given time of day and weekday set should fire, relative to now.
//
// The first candidate is today at the task's time, in now's location. A
// candidate that is not strictly in the future counts as passed, and a task
// already marked done rolls forward regardless of its time, so in either case
// the candidate advances by one day. An empty set means daily cadence and the
// candidate is returned as-is; otherwise the scan walks forward day by day
// until the candidate's weekday is a member of the set. The second return is
// false when no qualifying day exists within the scan window, which cannot
// happen for a well-formed non-empty set.
func NextOccurrence(now time.Time, at TimeOfDay, days DaySet, done bool) (time.Time, bool) {
	candidate := at.On(now)
	if !candidate.After(now) || done {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if days.IsEmpty() {
		return candidate, true
	}
	for i := 0; i < scanWindow; i++ {
		if days.Contains(candidate.Weekday()) {
			return candidate, true
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// EffectiveDays resolves override precedence between a task's own weekday set
// and its parent routine's default. The task's set wins whenever it is
// non-empty. A task with neither resolves to the empty set, which downstream
// code treats as daily.
func EffectiveDays(taskDays, routineDays DaySet) DaySet {
	if !taskDays.IsEmpty() {
		return taskDays
	}
	return routineDays
}
