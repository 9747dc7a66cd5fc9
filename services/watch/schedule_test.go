package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestNextRun_Daily(t *testing.T) {
	task := &Task{Frequency: FrequencyDaily, ScheduledTime: "09:00"}

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before anchor", at(2, 8, 1), at(2, 9, 0)},
		{"exactly at anchor", at(2, 9, 0), at(3, 9, 0)},
		{"after anchor", at(2, 9, 1), at(3, 9, 0)},
		{"seconds are dropped", at(2, 8, 59).Add(30 * time.Second), at(2, 9, 0)},
		{"month rollover", time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NextRun(task, tc.now))
		})
	}
}

func TestNextRun_Weekly(t *testing.T) {
	monday := &Task{Frequency: FrequencyWeekly, ScheduledTime: "09:00", DayOfWeek: Monday}
	wednesday := &Task{Frequency: FrequencyWeekly, ScheduledTime: "09:00", DayOfWeek: Wednesday}
	sunday := &Task{Frequency: FrequencyWeekly, ScheduledTime: "18:30", DayOfWeek: Sunday}

	require.Equal(t, at(2, 9, 0), NextRun(monday, at(2, 8, 0)), "target day, before anchor")
	require.Equal(t, at(9, 9, 0), NextRun(monday, at(2, 9, 0)), "target day, at anchor")
	require.Equal(t, at(9, 9, 0), NextRun(monday, at(2, 10, 0)), "target day, after anchor")
	require.Equal(t, at(4, 9, 0), NextRun(wednesday, at(2, 10, 0)), "two days out")
	require.Equal(t, at(8, 18, 30), NextRun(sunday, at(2, 10, 0)), "wraps to sunday")

	for d := 3; d <= 8; d++ {
		next := NextRun(monday, at(d, 12, 0))
		require.Equal(t, time.Monday, next.Weekday())
		require.True(t, next.After(at(d, 12, 0)))
		require.LessOrEqual(t, next.Sub(at(d, 12, 0)), 7*24*time.Hour)
	}
}

func TestNextRun_Hourly(t *testing.T) {
	task := &Task{Frequency: FrequencyHourly, ScheduledTime: "09:15"}

	require.Equal(t, at(2, 14, 15), NextRun(task, at(2, 14, 0)))
	require.Equal(t, at(2, 15, 15), NextRun(task, at(2, 14, 15)))
	require.Equal(t, at(2, 15, 15), NextRun(task, at(2, 14, 40)))
	require.Equal(t, at(3, 0, 15), NextRun(task, at(2, 23, 50)))

	top := &Task{Frequency: FrequencyHourly}
	require.Equal(t, at(2, 15, 0), NextRun(top, at(2, 14, 0)))
}

func TestNextRun_AlwaysInFuture(t *testing.T) {
	tasks := []*Task{
		{Frequency: FrequencyHourly, ScheduledTime: "00:30"},
		{Frequency: FrequencyDaily, ScheduledTime: "00:00"},
		{Frequency: FrequencyDaily, ScheduledTime: "23:59"},
		{Frequency: FrequencyWeekly, ScheduledTime: "12:00", DayOfWeek: Friday},
	}
	for _, task := range tasks {
		for m := 0; m < 7*24*60; m += 37 {
			now := at(2, 0, 0).Add(time.Duration(m) * time.Minute)
			require.True(t, NextRun(task, now).After(now), "%s %s at %s", task.Frequency, task.ScheduledTime, now)
		}
	}
}

func TestNextRun_Idempotent(t *testing.T) {
	task := &Task{Frequency: FrequencyWeekly, ScheduledTime: "07:45", DayOfWeek: Thursday}
	now := at(2, 13, 7)
	require.Equal(t, NextRun(task, now), NextRun(task, now))
}

func TestIsMissed(t *testing.T) {
	now := at(5, 12, 0)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	require.False(t, IsMissed(&Task{Frequency: FrequencyDaily}, now), "never ran")
	require.True(t, IsMissed(&Task{Frequency: FrequencyDaily, LastRun: ago(25 * time.Hour)}, now))
	require.False(t, IsMissed(&Task{Frequency: FrequencyDaily, LastRun: ago(23 * time.Hour)}, now))
	require.False(t, IsMissed(&Task{Frequency: FrequencyDaily, LastRun: ago(24 * time.Hour)}, now), "exactly one cycle")
	require.True(t, IsMissed(&Task{Frequency: FrequencyHourly, LastRun: ago(70 * time.Minute)}, now))
	require.False(t, IsMissed(&Task{Frequency: FrequencyWeekly, LastRun: ago(6 * 24 * time.Hour)}, now))
	require.True(t, IsMissed(&Task{Frequency: FrequencyWeekly, LastRun: ago(8 * 24 * time.Hour)}, now))
}
