package schedule

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, raw string) TimeOfDay {
	t.Helper()
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		t.Fatalf("parse time %q: %v", raw, err)
	}
	return parsed
}

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return parsed
}

func weekdayHours() Hours {
	return Hours{
		time.Monday:    {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(22, 0)},
		time.Tuesday:   {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(22, 0)},
		time.Wednesday: {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(22, 0)},
		time.Thursday:  {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(22, 0)},
		time.Friday:    {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(20, 0)},
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		raw  string
		want TimeOfDay
	}{
		{"08:00", NewTimeOfDay(8, 0)},
		{"14:30", NewTimeOfDay(14, 30)},
		{"2:30 PM", NewTimeOfDay(14, 30)},
		{"02:30PM", NewTimeOfDay(14, 30)},
		{"12:00 AM", NewTimeOfDay(0, 0)},
	}
	for _, tc := range tests {
		got, err := ParseTimeOfDay(tc.raw)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "25:00", "noon", "14"} {
		if _, err := ParseTimeOfDay(raw); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error", raw)
		}
	}
}

func TestTimeOfDayString(t *testing.T) {
	if got := NewTimeOfDay(9, 5).String(); got != "09:05" {
		t.Errorf("String() = %q, want 09:05", got)
	}
}

func TestWindowForRejectsInvalidWindow(t *testing.T) {
	hours := Hours{
		time.Monday: {Open: NewTimeOfDay(22, 0), Close: NewTimeOfDay(8, 0)},
	}
	if _, ok := hours.WindowFor(time.Monday); ok {
		t.Error("WindowFor accepted a window closing before it opens")
	}
}

func TestEnumerateSlotsExcludesPartialSlot(t *testing.T) {
	hours := Hours{
		time.Friday: {Open: NewTimeOfDay(8, 0), Close: NewTimeOfDay(9, 30)},
	}

	slots, err := EnumerateSlots(time.Friday, hours, time.Hour)
	if err != nil {
		t.Fatalf("EnumerateSlots: %v", err)
	}
	// 08:00 fits; 09:00 would spill past 09:30.
	if len(slots) != 1 || slots[0] != NewTimeOfDay(8, 0) {
		t.Errorf("slots = %v, want [08:00]", slots)
	}
}

func TestEnumerateSlotsNonOperatingDay(t *testing.T) {
	if _, err := EnumerateSlots(time.Sunday, weekdayHours(), time.Hour); err == nil {
		t.Error("expected error for non-operating weekday")
	}
}

func TestEnumerateSlotsCount(t *testing.T) {
	slots, err := EnumerateSlots(time.Monday, weekdayHours(), time.Hour)
	if err != nil {
		t.Fatalf("EnumerateSlots: %v", err)
	}
	if len(slots) != 14 {
		t.Errorf("got %d slots for a 08:00-22:00 window, want 14", len(slots))
	}
}

func TestSelectable(t *testing.T) {
	hours := weekdayHours()
	today := date(t, "2026-01-05") // Monday

	tests := []struct {
		name      string
		date      string
		startDate string
		want      bool
	}{
		{"past date", "2026-01-02", "", false},
		{"today operating", "2026-01-05", "", true},
		{"closed sunday", "2026-01-11", "", false},
		{"within span of start", "2026-01-19", "2026-01-05", true},
		{"beyond span of start", "2026-01-20", "2026-01-05", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var start time.Time
			if tc.startDate != "" {
				start = date(t, tc.startDate)
			}
			if got := Selectable(date(t, tc.date), today, start, hours); got != tc.want {
				t.Errorf("Selectable(%s) = %v, want %v", tc.date, got, tc.want)
			}
		})
	}
}
