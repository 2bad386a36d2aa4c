package gateway

import (
	"fmt"
	"strings"

	"timetask/internal/task"
)

// FormatList renders tasks for chat display, one line per task.
func FormatList(tasks []task.Task) string {
	if len(tasks) == 0 {
		return "No tasks registered."
	}
	var b strings.Builder
	b.WriteString("Tasks:\n")
	for _, t := range tasks {
		b.WriteString(fmt.Sprintf("\n[%s|%s] %s %s %s",
			t.Origin.UserName, t.ID, t.Recurrence.Wire(), t.ScheduledAt, t.Payload))
		if t.Dest.Kind == task.TargetGroup {
			b.WriteString(fmt.Sprintf(" group[%s]", t.Dest.GroupTitle))
		}
	}
	return b.String()
}
