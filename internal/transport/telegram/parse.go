package telegram

import (
	"strconv"
	"strings"
	"time"

	"timetask/internal/task"
)

// Command grammar:
//
//	/task <freq> <HH:MM> <payload...> [group[Title]]
//	/task list
//	/task cancel <id>
//	/task help
//
// Frequency tokens: today, tomorrow, daily, workdays, weekly-<weekday>,
// skip-<weekday>, monthly-<1..31>. Anything else is stored as the
// undefined dead-letter rule.
const helpText = `Usage:
  /task <freq> <HH:MM> <text> [group[Title]]
  /task list
  /task cancel <id>

Frequencies: today, tomorrow, daily, workdays,
  weekly-<mon..sun>, skip-<mon..sun>, monthly-<1..31>

Examples:
  /task today 17:00 drink water
  /task daily 08:30 standup in 15 minutes
  /task weekly-sun 09:00 plan the week
  /task skip-sat 18:00 close the office group[Ops Team]
  /task monthly-31 10:00 pay rent

A monthly day past the month's end fires on its last real day.`

type CmdKind int

const (
	CmdAdd CmdKind = iota
	CmdList
	CmdCancel
	CmdHelp
)

type Command struct {
	Kind       CmdKind
	Freq       string
	Time       string
	Payload    string
	GroupTitle string
	CancelID   string
}

// ParseCommand extracts a /task command from message text. The prefix may
// appear mid-message (e.g. when the bot is mentioned first).
func ParseCommand(text string) (Command, bool) {
	idx := strings.Index(text, "/task")
	if idx < 0 {
		return Command{}, false
	}
	rest := strings.TrimSpace(text[idx+len("/task"):])
	if rest == "" {
		return Command{Kind: CmdHelp}, true
	}

	fields := strings.Fields(rest)
	switch fields[0] {
	case "help":
		return Command{Kind: CmdHelp}, true
	case "list":
		return Command{Kind: CmdList}, true
	case "cancel":
		if len(fields) != 2 {
			return Command{Kind: CmdHelp}, true
		}
		return Command{Kind: CmdCancel, CancelID: fields[1]}, true
	}

	if len(fields) < 3 {
		return Command{Kind: CmdHelp}, true
	}

	cmd := Command{
		Kind: CmdAdd,
		Freq: fields[0],
		Time: fields[1],
	}
	payload := strings.Join(fields[2:], " ")
	payload, cmd.GroupTitle = splitGroupSuffix(payload)
	cmd.Payload = payload
	return cmd, true
}

// splitGroupSuffix peels a trailing "group[Title]" off the payload. Titles
// may contain spaces.
func splitGroupSuffix(payload string) (string, string) {
	if !strings.HasSuffix(payload, "]") {
		return payload, ""
	}
	idx := strings.LastIndex(payload, "group[")
	if idx < 0 {
		return payload, ""
	}
	title := payload[idx+len("group[") : len(payload)-1]
	if strings.TrimSpace(title) == "" {
		return payload, ""
	}
	return strings.TrimSpace(payload[:idx]), title
}

var weekdayTokens = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// ResolveFrequency turns a frequency token plus an HH:MM time into a
// recurrence and the task's stored schedule string. "today" and
// "tomorrow" become one-shots with a concrete date; unrecognized tokens
// map to the undefined dead-letter rule.
func ResolveFrequency(freq, hhmm string, now time.Time) (task.Recurrence, string) {
	switch freq {
	case "today":
		return task.Once{}, now.Format("2006-01-02") + " " + hhmm
	case "tomorrow":
		return task.Once{}, now.AddDate(0, 0, 1).Format("2006-01-02") + " " + hhmm
	case "daily":
		return task.EveryDay{}, hhmm
	case "workdays":
		return task.EveryWorkday{}, hhmm
	}
	if tok, ok := strings.CutPrefix(freq, "weekly-"); ok {
		if day, known := weekdayTokens[strings.ToLower(tok)]; known {
			return task.WeeklyOn{Day: day}, hhmm
		}
		return task.Undefined{}, hhmm
	}
	if tok, ok := strings.CutPrefix(freq, "skip-"); ok {
		if day, known := weekdayTokens[strings.ToLower(tok)]; known {
			return task.ExcludeWeekday{Day: day}, hhmm
		}
		return task.Undefined{}, hhmm
	}
	if tok, ok := strings.CutPrefix(freq, "monthly-"); ok {
		if n, err := strconv.Atoi(tok); err == nil && n >= 1 && n <= 31 {
			return task.MonthlyOn{Day: n}, hhmm
		}
		return task.Undefined{}, hhmm
	}
	return task.Undefined{}, hhmm
}
