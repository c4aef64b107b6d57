package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateConsecutiveSkipsClosedDays(t *testing.T) {
	req := ConsecutiveRequest{
		VenueID:   1,
		CourtID:   3,
		StartDate: date(t, "2026-01-08"), // Thursday
		EndDate:   date(t, "2026-01-12"), // Monday
		StartTime: mustTime(t, "10:00"),
		EndTime:   mustTime(t, "12:00"),
	}

	operating, skipped, err := GenerateConsecutive(req, weekdayHours())
	if err != nil {
		t.Fatalf("GenerateConsecutive: %v", err)
	}

	wantOperating := []string{"2026-01-08", "2026-01-09", "2026-01-12"}
	if len(operating) != len(wantOperating) {
		t.Fatalf("got %d operating dates, want %d", len(operating), len(wantOperating))
	}
	for i, entry := range operating {
		if DateKey(entry.Date) != wantOperating[i] {
			t.Errorf("operating[%d] = %s, want %s", i, DateKey(entry.Date), wantOperating[i])
		}
		if entry.CourtID != 3 || entry.StartTime != mustTime(t, "10:00") || entry.EndTime != mustTime(t, "12:00") {
			t.Errorf("operating[%d] did not inherit the request window and court", i)
		}
	}

	wantSkipped := []string{"2026-01-10", "2026-01-11"}
	if len(skipped) != len(wantSkipped) {
		t.Fatalf("got %d skipped dates, want %d", len(skipped), len(wantSkipped))
	}
	for i, day := range skipped {
		if DateKey(day) != wantSkipped[i] {
			t.Errorf("skipped[%d] = %s, want %s", i, DateKey(day), wantSkipped[i])
		}
	}
}

func TestGenerateConsecutiveSpanLimit(t *testing.T) {
	req := ConsecutiveRequest{
		StartDate: date(t, "2026-01-05"),
		EndDate:   date(t, "2026-01-20"), // 15 days out
		StartTime: mustTime(t, "10:00"),
		EndTime:   mustTime(t, "11:00"),
	}
	_, _, err := GenerateConsecutive(req, weekdayHours())
	var inputErr InputError
	if !errors.As(err, &inputErr) || inputErr.Field != "end_date" {
		t.Fatalf("expected end_date input error, got %v", err)
	}
}

func TestGenerateConsecutiveRejectsInvertedWindow(t *testing.T) {
	req := ConsecutiveRequest{
		StartDate: date(t, "2026-01-05"),
		EndDate:   date(t, "2026-01-06"),
		StartTime: mustTime(t, "12:00"),
		EndTime:   mustTime(t, "10:00"),
	}
	if _, _, err := GenerateConsecutive(req, weekdayHours()); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestGenerateWeeklyRollsWeekZeroForward(t *testing.T) {
	// Start on a Wednesday asking for Monday and Friday. The week-zero Monday
	// precedes the start date and must roll into the following week.
	req := WeeklyRequest{
		VenueID:   1,
		CourtID:   2,
		StartDate: date(t, "2026-01-07"), // Wednesday
		Weekdays:  []time.Weekday{time.Monday, time.Friday},
		StartTime: mustTime(t, "18:00"),
		EndTime:   mustTime(t, "19:00"),
		Weeks:     2,
	}

	entries, err := GenerateWeekly(req, weekdayHours())
	if err != nil {
		t.Fatalf("GenerateWeekly: %v", err)
	}

	want := []string{"2026-01-09", "2026-01-12", "2026-01-16", "2026-01-19"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, entry := range entries {
		if DateKey(entry.Date) != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, DateKey(entry.Date), want[i])
		}
		if entry.Date.Before(req.StartDate) {
			t.Errorf("entries[%d] precedes the start date", i)
		}
	}
}

func TestGenerateWeeklyUnconfiguredWeekdayIsHardError(t *testing.T) {
	req := WeeklyRequest{
		StartDate: date(t, "2026-01-05"),
		Weekdays:  []time.Weekday{time.Sunday},
		StartTime: mustTime(t, "10:00"),
		EndTime:   mustTime(t, "11:00"),
		Weeks:     1,
	}
	_, err := GenerateWeekly(req, weekdayHours())
	if !errors.Is(err, ErrNoOperatingHours) {
		t.Fatalf("expected ErrNoOperatingHours, got %v", err)
	}
}

func TestWeeklyRequestValidate(t *testing.T) {
	base := WeeklyRequest{
		StartDate: date(t, "2026-01-05"),
		Weekdays:  []time.Weekday{time.Monday},
		StartTime: mustTime(t, "10:00"),
		EndTime:   mustTime(t, "11:00"),
		Weeks:     1,
	}

	tests := []struct {
		name   string
		mutate func(*WeeklyRequest)
		field  string
	}{
		{"three weeks", func(r *WeeklyRequest) { r.Weeks = 3 }, "number_of_weeks"},
		{"zero weeks", func(r *WeeklyRequest) { r.Weeks = 0 }, "number_of_weeks"},
		{"no weekdays", func(r *WeeklyRequest) { r.Weekdays = nil }, "weekdays"},
		{"duplicate weekdays", func(r *WeeklyRequest) { r.Weekdays = []time.Weekday{time.Monday, time.Monday} }, "weekdays"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			err := req.Validate()
			var inputErr InputError
			if !errors.As(err, &inputErr) || inputErr.Field != tc.field {
				t.Fatalf("expected %s input error, got %v", tc.field, err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestEffectiveOverride(t *testing.T) {
	entry := DateEntry{
		Date:      date(t, "2026-01-05"),
		StartTime: mustTime(t, "10:00"),
		EndTime:   mustTime(t, "11:00"),
		CourtID:   1,
	}

	if got := entry.Effective(nil); got != entry {
		t.Error("nil override must be identity")
	}

	courtID := int64(4)
	start := mustTime(t, "14:00")
	end := mustTime(t, "15:00")
	got := entry.Effective(&Override{CourtID: &courtID, StartTime: &start, EndTime: &end})
	if got.CourtID != 4 || got.StartTime != start || got.EndTime != end {
		t.Errorf("override not applied: %+v", got)
	}
	if got.Date != entry.Date {
		t.Error("override must not move the date")
	}
}
