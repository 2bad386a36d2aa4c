package task

import "time"

// Moment is one wall-clock sample, pre-formatted the way the evaluator
// compares it: minute-resolution time and calendar date as strings.
type Moment struct {
	HHMM      string // "15:04"
	Date      string // "2006-01-02"
	Weekday   time.Weekday
	Day       int // day of month, 1-based
	MonthDays int // number of days in the current month
}

// Clock produces Moments. The scheduler loop and the gateway take it as an
// interface so tests can pin time deterministically.
type Clock interface {
	Now() Moment
}

// MomentAt converts an absolute time into a Moment.
func MomentAt(t time.Time) Moment {
	return Moment{
		HHMM:      t.Format("15:04"),
		Date:      t.Format("2006-01-02"),
		Weekday:   t.Weekday(),
		Day:       t.Day(),
		MonthDays: daysInMonth(t),
	}
}

func daysInMonth(t time.Time) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

type sysClock struct {
	loc *time.Location
}

// NewClock returns a wall clock in the given location. A nil location
// falls back to the local zone.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return sysClock{loc: loc}
}

func (c sysClock) Now() Moment {
	return MomentAt(time.Now().In(c.loc))
}
