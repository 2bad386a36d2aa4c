package task

import (
	"errors"
	"testing"
	"time"
)

func TestParseRecurrenceRoundTrip(t *testing.T) {
	t.Parallel()
	recs := []Recurrence{
		Once{},
		EveryWorkday{},
		EveryDay{},
		WeeklyOn{Day: time.Monday},
		WeeklyOn{Day: time.Sunday},
		ExcludeWeekday{Day: time.Saturday},
		MonthlyOn{Day: 1},
		MonthlyOn{Day: 31},
		Undefined{},
	}
	for _, r := range recs {
		got, err := ParseRecurrence(r.Wire())
		if err != nil {
			t.Fatalf("ParseRecurrence(%q): %v", r.Wire(), err)
		}
		if got != r {
			t.Fatalf("ParseRecurrence(%q) = %#v, want %#v", r.Wire(), got, r)
		}
	}
}

func TestParseRecurrenceWireTags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wire string
		want Recurrence
	}{
		{"once", Once{}},
		{"work_day", EveryWorkday{}},
		{"every_day", EveryDay{}},
		{"weekly_Wednesday", WeeklyOn{Day: time.Wednesday}},
		{"excludeWeekday_Sunday", ExcludeWeekday{Day: time.Sunday}},
		{"monthly_15", MonthlyOn{Day: 15}},
		{"undefined", Undefined{}},
	}
	for _, tt := range tests {
		got, err := ParseRecurrence(tt.wire)
		if err != nil {
			t.Fatalf("ParseRecurrence(%q): %v", tt.wire, err)
		}
		if got != tt.want {
			t.Fatalf("ParseRecurrence(%q) = %#v, want %#v", tt.wire, got, tt.want)
		}
	}
}

func TestParseRecurrenceRejectsUnknown(t *testing.T) {
	t.Parallel()
	for _, wire := range []string{
		"",
		"hourly",
		"weekly_Notaday",
		"monthly_0",
		"monthly_32",
		"monthly_x",
		"excludeWeekday_",
	} {
		if _, err := ParseRecurrence(wire); !errors.Is(err, ErrMalformedTask) {
			t.Fatalf("ParseRecurrence(%q) err = %v, want ErrMalformedTask", wire, err)
		}
	}
}

func TestIsOneShot(t *testing.T) {
	t.Parallel()
	if !(Task{Recurrence: Once{}}).IsOneShot() {
		t.Fatal("once task should be one-shot")
	}
	if (Task{Recurrence: EveryDay{}}).IsOneShot() {
		t.Fatal("daily task is not one-shot")
	}
}
