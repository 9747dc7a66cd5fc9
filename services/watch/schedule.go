package watch

import "time"

// NextRun returns the next eligible run time for task, strictly after now.
//
// A candidate equal to now belongs to the next cycle for every frequency.
// Hourly tasks anchor on scheduledTime's minute within the current hour.
func NextRun(task *Task, now time.Time) time.Time {
	hour, minute, err := parseClock(task.ScheduledTime)
	if err != nil {
		hour, minute = 0, 0
	}

	switch task.Frequency {
	case FrequencyHourly:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.Add(time.Hour)
		}
		return candidate

	case FrequencyWeekly:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		target, ok := task.DayOfWeek.Index()
		if !ok {
			target = now.Weekday()
		}
		daysToAdd := (int(target) - int(now.Weekday()) + 7) % 7
		if daysToAdd == 0 && !candidate.After(now) {
			daysToAdd = 7
		}
		return candidate.AddDate(0, 0, daysToAdd)

	default:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}
}

// IsMissed reports whether more than one full cycle elapsed since the last
// run. A task that never ran is not missed.
func IsMissed(task *Task, now time.Time) bool {
	if task.LastRun == nil {
		return false
	}
	return now.Sub(*task.LastRun) > task.Frequency.Interval()
}
