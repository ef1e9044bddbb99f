package action

import "time"

var weekdays = map[time.Weekday]ScheduleDay{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// DayMatches is true when day is All or names today.
func DayMatches(day ScheduleDay, today time.Weekday) bool {
	return day == All || weekdays[today] == day
}

// TimeMatches compares hour and minute only. now must already be in the
// reference timezone.
func TimeMatches(at ScheduleTime, now time.Time) bool {
	return at.Hour == now.Hour() && at.Minute == now.Minute()
}

// IsDue reports whether a fires in the minute containing now.
func IsDue(a *Action, now time.Time) bool {
	return a.Eligible() && DayMatches(a.ScheduleDay, now.Weekday()) && TimeMatches(a.ScheduleTime, now)
}
