package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxSpanDays is the business limit on how far a booking may stretch past its
// start date, shared by request validation and date-picker selectability.
const MaxSpanDays = 14

var ErrNoOperatingHours = errors.New("no operating hours configured for weekday")

// TimeOfDay is a clock time at minute granularity, counted from midnight.
type TimeOfDay int

// ParseTimeOfDay parses HH:MM or H:MM AM/PM clock values.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("time is required")
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		formats := []string{"3:04 PM", "03:04 PM", "3:04PM", "03:04PM"}
		for _, format := range formats {
			if parsed, err = time.Parse(format, strings.ToUpper(raw)); err == nil {
				return NewTimeOfDay(parsed.Hour(), parsed.Minute()), nil
			}
		}
		return 0, errors.New("time must be in HH:MM or H:MM AM/PM format")
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute()), nil
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int    { return int(t) / 60 }
func (t TimeOfDay) Minute() int  { return int(t) % 60 }
func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns the clock time d later. Results past midnight are not clamped;
// callers compare against window closes which never cross midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// Window is a half-open [Open, Close) operating interval within one day.
type Window struct {
	Open  TimeOfDay
	Close TimeOfDay
}

func (w Window) Valid() bool {
	return w.Close > w.Open
}

// Hours maps weekdays to their operating window. A weekday with no entry is a
// non-operating day.
type Hours map[time.Weekday]Window

func (h Hours) WindowFor(day time.Weekday) (Window, bool) {
	window, ok := h[day]
	if !ok || !window.Valid() {
		return Window{}, false
	}
	return window, true
}

// IsOperatingDay reports whether the date's weekday has a configured window.
func IsOperatingDay(date time.Time, hours Hours) bool {
	_, ok := hours.WindowFor(date.Weekday())
	return ok
}

// EnumerateSlots lists the slot start times for a weekday, stepping by the
// slot duration from window open. A trailing partial slot is excluded.
func EnumerateSlots(day time.Weekday, hours Hours, slotDuration time.Duration) ([]TimeOfDay, error) {
	if slotDuration <= 0 {
		return nil, errors.New("slot duration must be positive")
	}
	window, ok := hours.WindowFor(day)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOperatingHours, day)
	}

	var slots []TimeOfDay
	for start := window.Open; start.Add(slotDuration) <= window.Close; start = start.Add(slotDuration) {
		slots = append(slots, start)
	}
	return slots, nil
}

// Selectable reports whether a date may be offered in a date picker: not in
// the past, on an operating weekday, and within MaxSpanDays of an already
// chosen start date (pass zero startDate when none is chosen yet).
func Selectable(date, today, startDate time.Time, hours Hours) bool {
	date = TruncateDate(date)
	if date.Before(TruncateDate(today)) {
		return false
	}
	if !IsOperatingDay(date, hours) {
		return false
	}
	if !startDate.IsZero() && date.After(TruncateDate(startDate).AddDate(0, 0, MaxSpanDays)) {
		return false
	}
	return true
}

// TruncateDate drops the time-of-day portion, keeping the location.
func TruncateDate(value time.Time) time.Time {
	loc := value.Location()
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, loc)
}

// DateKey renders a date in the canonical YYYY-MM-DD form used as map keys and
// wire values throughout the booking flow.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// ParseDate parses a canonical YYYY-MM-DD value in the local time zone.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date is required")
	}
	parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, errors.New("date must be in YYYY-MM-DD format")
	}
	return parsed, nil
}
