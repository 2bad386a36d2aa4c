package task

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task is the unit of schedulable work.
//
// ScheduledAt holds "HH:MM" for recurring tasks and "YYYY-MM-DD HH:MM" for
// one-shots. Comparisons against the clock are exact string matches at
// minute resolution.
type Task struct {
	ID          string
	ScheduledAt string
	Recurrence  Recurrence
	Payload     string
	Dest        Destination
	Origin      Origin

	// Processed guards recurring tasks against a second fire within the
	// same calendar day. It is reset at the local midnight boundary and
	// is meaningless for one-shots (those are deleted with their fire).
	Processed bool
}

// Origin identifies the creator. Carried for listing and audit only; it
// plays no part in recurrence matching.
type Origin struct {
	UserID    string
	UserName  string
	GroupName string // creator's group display name, empty for direct chats
}

// TargetKind selects how a Destination is routed.
type TargetKind int

const (
	TargetDirect TargetKind = iota
	TargetGroup
)

// Destination is the unresolved reference to a delivery target. Group
// titles are resolved to a concrete handle only at fire time.
type Destination struct {
	Kind       TargetKind
	UserID     string // TargetDirect
	GroupTitle string // TargetGroup
}

func DirectTo(userID string) Destination {
	return Destination{Kind: TargetDirect, UserID: userID}
}

func GroupByTitle(title string) Destination {
	return Destination{Kind: TargetGroup, GroupTitle: title}
}

// Recurrence is the closed set of firing rules. The unexported marker
// method keeps the set sealed so evaluation can switch exhaustively
// instead of falling through on string tags.
type Recurrence interface {
	// Wire returns the stored text tag for this rule.
	Wire() string
	isRecurrence()
}

// Once fires at one exact date+time, then the task is deleted.
type Once struct{}

// EveryWorkday fires Monday through Friday at the task's time.
type EveryWorkday struct{}

// EveryDay fires every day at the task's time.
type EveryDay struct{}

// WeeklyOn fires on one weekday per week.
type WeeklyOn struct{ Day time.Weekday }

// ExcludeWeekday fires every day except the given weekday.
type ExcludeWeekday struct{ Day time.Weekday }

// MonthlyOn fires on one day of the month (1..31). If the month is shorter
// than Day, the task fires on the month's last real day instead.
type MonthlyOn struct{ Day int }

// Undefined is the dead-letter rule: stored, listed, never fired. It is
// kept until the owner cancels it explicitly.
type Undefined struct{}

func (Once) isRecurrence()           {}
func (EveryWorkday) isRecurrence()   {}
func (EveryDay) isRecurrence()       {}
func (WeeklyOn) isRecurrence()       {}
func (ExcludeWeekday) isRecurrence() {}
func (MonthlyOn) isRecurrence()      {}
func (Undefined) isRecurrence()      {}

const (
	wireOnce          = "once"
	wireWorkday       = "work_day"
	wireEveryDay      = "every_day"
	wireWeeklyPrefix  = "weekly_"
	wireExcludePrefix = "excludeWeekday_"
	wireMonthlyPrefix = "monthly_"
	wireUndefined     = "undefined"
)

func (Once) Wire() string         { return wireOnce }
func (EveryWorkday) Wire() string { return wireWorkday }
func (EveryDay) Wire() string     { return wireEveryDay }
func (r WeeklyOn) Wire() string   { return wireWeeklyPrefix + r.Day.String() }
func (r ExcludeWeekday) Wire() string {
	return wireExcludePrefix + r.Day.String()
}
func (r MonthlyOn) Wire() string { return wireMonthlyPrefix + strconv.Itoa(r.Day) }
func (Undefined) Wire() string   { return wireUndefined }

// ParseRecurrence decodes a stored recurrence tag. Tags outside the known
// grammar are treated as data corruption and rejected; the caller decides
// whether to drop the record.
func ParseRecurrence(s string) (Recurrence, error) {
	switch s {
	case wireOnce:
		return Once{}, nil
	case wireWorkday:
		return EveryWorkday{}, nil
	case wireEveryDay:
		return EveryDay{}, nil
	case wireUndefined:
		return Undefined{}, nil
	}
	switch {
	case strings.HasPrefix(s, wireWeeklyPrefix):
		day, ok := parseWeekday(strings.TrimPrefix(s, wireWeeklyPrefix))
		if !ok {
			return nil, fmt.Errorf("%w: bad weekly tag %q", ErrMalformedTask, s)
		}
		return WeeklyOn{Day: day}, nil
	case strings.HasPrefix(s, wireExcludePrefix):
		day, ok := parseWeekday(strings.TrimPrefix(s, wireExcludePrefix))
		if !ok {
			return nil, fmt.Errorf("%w: bad exclude tag %q", ErrMalformedTask, s)
		}
		return ExcludeWeekday{Day: day}, nil
	case strings.HasPrefix(s, wireMonthlyPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(s, wireMonthlyPrefix))
		if err != nil || n < 1 || n > 31 {
			return nil, fmt.Errorf("%w: bad monthly tag %q", ErrMalformedTask, s)
		}
		return MonthlyOn{Day: n}, nil
	}
	return nil, fmt.Errorf("%w: unknown recurrence tag %q", ErrMalformedTask, s)
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// IsOneShot reports whether the task fires at most once total.
func (t Task) IsOneShot() bool {
	_, ok := t.Recurrence.(Once)
	return ok
}
