package task

import (
	"fmt"
	"strings"
	"time"
)

// ShouldFire decides whether a task fires at the given wall-clock sample.
// It is a pure function of its inputs.
//
// A non-nil error wraps ErrMalformedTask and means the record itself is
// broken; the caller is expected to remove it rather than re-evaluate it
// forever.
func ShouldFire(t Task, now Moment) (bool, error) {
	switch r := t.Recurrence.(type) {
	case Once:
		date, hhmm, ok := splitOnceTime(t.ScheduledAt)
		if !ok {
			return false, fmt.Errorf("%w: one-shot time %q is not \"YYYY-MM-DD HH:MM\"", ErrMalformedTask, t.ScheduledAt)
		}
		return date == now.Date && hhmm == now.HHMM, nil
	case EveryWorkday:
		return isWorkday(now.Weekday) && timeDue(t, now), nil
	case EveryDay:
		return timeDue(t, now), nil
	case WeeklyOn:
		return now.Weekday == r.Day && timeDue(t, now), nil
	case ExcludeWeekday:
		return now.Weekday != r.Day && timeDue(t, now), nil
	case MonthlyOn:
		return monthlyDue(r.Day, now) && timeDue(t, now), nil
	case Undefined:
		// Dead-letter: persists, never fires.
		return false, nil
	default:
		return false, fmt.Errorf("%w: unhandled recurrence %T", ErrMalformedTask, t.Recurrence)
	}
}

func timeDue(t Task, now Moment) bool {
	return t.ScheduledAt == now.HHMM && !t.Processed
}

func isWorkday(d time.Weekday) bool {
	return d >= time.Monday && d <= time.Friday
}

// monthlyDue implements the monthly policy: fire on the configured day, or
// on the month's last real day when the configured day does not exist this
// month (a "day 31" task still fires once in a 30-day month).
func monthlyDue(day int, now Moment) bool {
	if day < now.Day {
		return false
	}
	if day == now.Day {
		return true
	}
	return now.Day == now.MonthDays
}

func splitOnceTime(s string) (date, hhmm string, ok bool) {
	parts := strings.Split(s, " ")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
