package schedule

import (
	"fmt"
	"sort"
	"time"
)

// InputError marks a booking request rejected before date generation.
type InputError struct {
	Field  string
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// DateEntry is one concrete dated slot of a booking set. The time window and
// court default to the request's values until an override replaces them.
type DateEntry struct {
	Date      time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	CourtID   int64
}

// Override replaces selected fields of a DateEntry for a single date. Nil
// fields keep the request defaults; a nil CourtID on a rescheduled date is how
// downstream consumers distinguish "same court, new time" from a court switch.
type Override struct {
	CourtID   *int64
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
}

// Effective resolves the entry's window and court against an override.
func (e DateEntry) Effective(o *Override) DateEntry {
	if o == nil {
		return e
	}
	resolved := e
	if o.CourtID != nil {
		resolved.CourtID = *o.CourtID
	}
	if o.StartTime != nil {
		resolved.StartTime = *o.StartTime
	}
	if o.EndTime != nil {
		resolved.EndTime = *o.EndTime
	}
	return resolved
}

// ConsecutiveRequest books the same daily window on every date of a range.
type ConsecutiveRequest struct {
	VenueID   int64
	CourtID   int64
	StartDate time.Time
	EndDate   time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

func (r ConsecutiveRequest) Validate() error {
	if r.EndTime <= r.StartTime {
		return InputError{Field: "end_time", Reason: "must be after start_time"}
	}
	start := TruncateDate(r.StartDate)
	end := TruncateDate(r.EndDate)
	if end.Before(start) {
		return InputError{Field: "end_date", Reason: "must be on or after start_date"}
	}
	if end.After(start.AddDate(0, 0, MaxSpanDays)) {
		return InputError{Field: "end_date", Reason: fmt.Sprintf("must be within %d days of start_date", MaxSpanDays)}
	}
	return nil
}

// WeeklyRequest books a weekly weekday pattern for a small number of weeks.
type WeeklyRequest struct {
	VenueID   int64
	CourtID   int64
	StartDate time.Time
	Weekdays  []time.Weekday
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Weeks     int
}

func (r WeeklyRequest) Validate() error {
	if r.EndTime <= r.StartTime {
		return InputError{Field: "end_time", Reason: "must be after start_time"}
	}
	if len(r.Weekdays) == 0 {
		return InputError{Field: "weekdays", Reason: "must include at least one weekday"}
	}
	if r.Weeks < 1 || r.Weeks > 2 {
		return InputError{Field: "number_of_weeks", Reason: "must be 1 or 2"}
	}
	seen := make(map[time.Weekday]struct{}, len(r.Weekdays))
	for _, day := range r.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return InputError{Field: "weekdays", Reason: "contains an invalid weekday"}
		}
		if _, ok := seen[day]; ok {
			return InputError{Field: "weekdays", Reason: "contains duplicate weekdays"}
		}
		seen[day] = struct{}{}
	}
	return nil
}

// GenerateConsecutive expands a consecutive request into operating dates plus
// the non-operating dates that were skipped. Skipped dates are informational;
// they are shown to the customer before commit, never booked or priced.
func GenerateConsecutive(req ConsecutiveRequest, hours Hours) (operating []DateEntry, skipped []time.Time, err error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	start := TruncateDate(req.StartDate)
	end := TruncateDate(req.EndDate)
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if !IsOperatingDay(date, hours) {
			skipped = append(skipped, date)
			continue
		}
		operating = append(operating, DateEntry{
			Date:      date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			CourtID:   req.CourtID,
		})
	}
	return operating, skipped, nil
}

// GenerateWeekly expands a weekly request into one date per (week, weekday)
// pair. A requested weekday falling before the start date inside week zero
// rolls forward to the next week, so no generated date precedes the start
// date. A requested weekday with no operating window is a hard error rather
// than a silently skipped (and mispriced) date.
func GenerateWeekly(req WeeklyRequest, hours Hours) ([]DateEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, day := range req.Weekdays {
		if _, ok := hours.WindowFor(day); !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoOperatingHours, day)
		}
	}

	start := TruncateDate(req.StartDate)
	entries := make([]DateEntry, 0, req.Weeks*len(req.Weekdays))
	for week := 0; week < req.Weeks; week++ {
		for _, day := range req.Weekdays {
			offset := (int(day) - int(start.Weekday()) + 7) % 7
			date := start.AddDate(0, 0, week*7+offset)
			entries = append(entries, DateEntry{
				Date:      date,
				StartTime: req.StartTime,
				EndTime:   req.EndTime,
				CourtID:   req.CourtID,
			})
		}
	}

	// Ascending date order is the canonical ordering for every downstream
	// breakdown table and payment summary.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}
