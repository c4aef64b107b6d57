package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/courtbook/courtbook/internal/booking/schedule"
)

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := schedule.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return parsed
}

func tod(h, m int) schedule.TimeOfDay {
	return schedule.NewTimeOfDay(h, m)
}

func requestedEntries(t *testing.T) []schedule.DateEntry {
	return []schedule.DateEntry{
		{Date: date(t, "2026-01-05"), StartTime: tod(10, 0), EndTime: tod(12, 0), CourtID: 1},
		{Date: date(t, "2026-01-06"), StartTime: tod(10, 0), EndTime: tod(12, 0), CourtID: 1},
	}
}

func TestDetectOverlapSameCourt(t *testing.T) {
	existing := []Booking{
		{ID: 7, CourtID: 1, Date: date(t, "2026-01-05"), StartTime: tod(11, 0), EndTime: tod(13, 0)},
		{ID: 9, CourtID: 1, Date: date(t, "2026-01-05"), StartTime: tod(9, 0), EndTime: tod(10, 30)},
	}

	conflicts := Detect(requestedEntries(t), existing)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if schedule.DateKey(c.Date) != "2026-01-05" {
		t.Errorf("conflict date = %s", schedule.DateKey(c.Date))
	}
	if len(c.BookingIDs) != 2 || c.BookingIDs[0] != 7 || c.BookingIDs[1] != 9 {
		t.Errorf("BookingIDs = %v, want sorted [7 9]", c.BookingIDs)
	}
}

func TestDetectIgnoresOtherCourtsAndAbuttingWindows(t *testing.T) {
	existing := []Booking{
		// Other court, same window.
		{ID: 1, CourtID: 2, Date: date(t, "2026-01-05"), StartTime: tod(10, 0), EndTime: tod(12, 0)},
		// Same court, half-open windows touching at 10:00.
		{ID: 2, CourtID: 1, Date: date(t, "2026-01-05"), StartTime: tod(8, 0), EndTime: tod(10, 0)},
		// Same court, starts exactly at requested end.
		{ID: 3, CourtID: 1, Date: date(t, "2026-01-06"), StartTime: tod(12, 0), EndTime: tod(14, 0)},
	}

	if conflicts := Detect(requestedEntries(t), existing); len(conflicts) != 0 {
		t.Errorf("got conflicts %v, want none", conflicts)
	}
}

func TestFoldSkip(t *testing.T) {
	conflicts := []Conflict{{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}}}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: ActionSkip},
	}

	resolved, err := Fold(conflicts, resolutions, 1)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(resolved.SkipDates) != 1 || schedule.DateKey(resolved.SkipDates[0]) != "2026-01-05" {
		t.Errorf("SkipDates = %v", resolved.SkipDates)
	}
	if !resolved.SkipSet()["2026-01-05"] {
		t.Error("SkipSet missing skipped date")
	}
	if len(resolved.Overrides) != 0 {
		t.Errorf("skip must not create overrides: %v", resolved.Overrides)
	}
}

func TestFoldSwitchCarriesOnlyCourt(t *testing.T) {
	conflicts := []Conflict{{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}}}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: ActionSwitch, CourtID: 4},
	}

	resolved, err := Fold(conflicts, resolutions, 1)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	override, ok := resolved.Overrides["2026-01-05"]
	if !ok {
		t.Fatal("switch produced no override")
	}
	if override.CourtID == nil || *override.CourtID != 4 {
		t.Errorf("CourtID = %v, want 4", override.CourtID)
	}
	if override.StartTime != nil || override.EndTime != nil {
		t.Error("switch must not touch the time window")
	}
}

func TestFoldSwitchRequiresCourt(t *testing.T) {
	conflicts := []Conflict{{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}}}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: ActionSwitch},
	}
	if _, err := Fold(conflicts, resolutions, 1); err == nil {
		t.Fatal("switch without a court must fail")
	}
}

func TestFoldRescheduleCourtOnlyWhenDifferent(t *testing.T) {
	conflicts := []Conflict{
		{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}},
		{Date: date(t, "2026-01-06"), BookingIDs: []int64{8}},
	}
	resolutions := map[string]Resolution{
		// Same court as the request: the override carries only the window.
		"2026-01-05": {Action: ActionReschedule, CourtID: 1, NewStart: tod(14, 0), NewEnd: tod(16, 0)},
		// Different court: the override carries the court too.
		"2026-01-06": {Action: ActionReschedule, CourtID: 3, NewStart: tod(14, 0), NewEnd: tod(16, 0)},
	}

	resolved, err := Fold(conflicts, resolutions, 1)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}

	same := resolved.Overrides["2026-01-05"]
	if same.CourtID != nil {
		t.Error("reschedule on the base court must omit the court")
	}
	if same.StartTime == nil || *same.StartTime != tod(14, 0) || same.EndTime == nil || *same.EndTime != tod(16, 0) {
		t.Errorf("window override missing: %+v", same)
	}

	moved := resolved.Overrides["2026-01-06"]
	if moved.CourtID == nil || *moved.CourtID != 3 {
		t.Errorf("court switch missing from reschedule: %+v", moved)
	}
}

func TestFoldRescheduleRejectsInvertedWindow(t *testing.T) {
	conflicts := []Conflict{{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}}}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: ActionReschedule, NewStart: tod(16, 0), NewEnd: tod(14, 0)},
	}
	if _, err := Fold(conflicts, resolutions, 1); err == nil {
		t.Fatal("reschedule with end before start must fail")
	}
}

func TestFoldFailsClosedOnUnresolved(t *testing.T) {
	conflicts := []Conflict{
		{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}},
		{Date: date(t, "2026-01-06"), BookingIDs: []int64{8}},
	}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: ActionSkip},
	}

	_, err := Fold(conflicts, resolutions, 1)
	var unresolved UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedError, got %v", err)
	}
	if len(unresolved.Dates) != 1 || unresolved.Dates[0] != "2026-01-06" {
		t.Errorf("unresolved dates = %v", unresolved.Dates)
	}
}

func TestFoldUnknownAction(t *testing.T) {
	conflicts := []Conflict{{Date: date(t, "2026-01-05"), BookingIDs: []int64{7}}}
	resolutions := map[string]Resolution{
		"2026-01-05": {Action: "defer"},
	}
	if _, err := Fold(conflicts, resolutions, 1); err == nil {
		t.Fatal("unknown action must fail")
	}
}

func TestFoldNoConflictsIsNoOp(t *testing.T) {
	resolved, err := Fold(nil, nil, 1)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(resolved.SkipDates) != 0 || len(resolved.Overrides) != 0 {
		t.Errorf("empty fold produced %+v", resolved)
	}
}
