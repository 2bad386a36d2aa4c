package telegram

import (
	"testing"
	"time"

	"timetask/internal/task"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want Command
		ok   bool
	}{
		{
			name: "no prefix",
			text: "hello there",
			ok:   false,
		},
		{
			name: "bare command shows help",
			text: "/task",
			want: Command{Kind: CmdHelp},
			ok:   true,
		},
		{
			name: "help",
			text: "/task help",
			want: Command{Kind: CmdHelp},
			ok:   true,
		},
		{
			name: "list",
			text: "/task list",
			want: Command{Kind: CmdList},
			ok:   true,
		},
		{
			name: "cancel",
			text: "/task cancel ABC123",
			want: Command{Kind: CmdCancel, CancelID: "ABC123"},
			ok:   true,
		},
		{
			name: "cancel without id falls back to help",
			text: "/task cancel",
			want: Command{Kind: CmdHelp},
			ok:   true,
		},
		{
			name: "add direct",
			text: "/task daily 08:30 drink water",
			want: Command{Kind: CmdAdd, Freq: "daily", Time: "08:30", Payload: "drink water"},
			ok:   true,
		},
		{
			name: "add with group suffix",
			text: "/task skip-sat 18:00 close the office group[Ops Team]",
			want: Command{Kind: CmdAdd, Freq: "skip-sat", Time: "18:00", Payload: "close the office", GroupTitle: "Ops Team"},
			ok:   true,
		},
		{
			name: "prefix mid-message",
			text: "@bot /task today 17:00 go home",
			want: Command{Kind: CmdAdd, Freq: "today", Time: "17:00", Payload: "go home"},
			ok:   true,
		},
		{
			name: "too few fields falls back to help",
			text: "/task daily 08:30",
			want: Command{Kind: CmdHelp},
			ok:   true,
		},
		{
			name: "brackets inside payload are not a group suffix",
			text: "/task daily 09:00 check queue [prod]",
			want: Command{Kind: CmdAdd, Freq: "daily", Time: "09:00", Payload: "check queue [prod]"},
			ok:   true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseCommand(tt.text)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("cmd = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSplitGroupSuffix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		payload string
		title   string
	}{
		{"hello group[Team]", "hello", "Team"},
		{"hello group[Team With Spaces]", "hello", "Team With Spaces"},
		{"hello", "hello", ""},
		{"hello group[]", "hello group[]", ""},
		{"group[Only]", "", "Only"},
	}
	for _, tt := range tests {
		payload, title := splitGroupSuffix(tt.in)
		if payload != tt.payload || title != tt.title {
			t.Fatalf("splitGroupSuffix(%q) = (%q, %q), want (%q, %q)",
				tt.in, payload, title, tt.payload, tt.title)
		}
	}
}

func TestResolveFrequency(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		freq    string
		wantRec task.Recurrence
		wantAt  string
	}{
		{"today", task.Once{}, "2024-06-01 10:00"},
		{"tomorrow", task.Once{}, "2024-06-02 10:00"},
		{"daily", task.EveryDay{}, "10:00"},
		{"workdays", task.EveryWorkday{}, "10:00"},
		{"weekly-sun", task.WeeklyOn{Day: time.Sunday}, "10:00"},
		{"weekly-monday", task.WeeklyOn{Day: time.Monday}, "10:00"},
		{"skip-sat", task.ExcludeWeekday{Day: time.Saturday}, "10:00"},
		{"monthly-31", task.MonthlyOn{Day: 31}, "10:00"},
		{"monthly-0", task.Undefined{}, "10:00"},
		{"monthly-32", task.Undefined{}, "10:00"},
		{"weekly-notaday", task.Undefined{}, "10:00"},
		{"sometimes", task.Undefined{}, "10:00"},
	}
	for _, tt := range tests {
		rec, at := ResolveFrequency(tt.freq, "10:00", now)
		if rec != tt.wantRec || at != tt.wantAt {
			t.Fatalf("ResolveFrequency(%q) = (%#v, %q), want (%#v, %q)",
				tt.freq, rec, at, tt.wantRec, tt.wantAt)
		}
	}
}
