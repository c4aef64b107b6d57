package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/courtbook/courtbook/internal/booking/schedule"
)

// Action is the customer's chosen way out of a conflicting date.
type Action string

const (
	ActionSkip       Action = "skip"
	ActionSwitch     Action = "switch"
	ActionReschedule Action = "reschedule"
)

// Booking is the slice of an existing reservation relevant to conflict
// detection: which court is taken, on which date, over which window.
type Booking struct {
	ID        int64
	CourtID   int64
	Date      time.Time
	StartTime schedule.TimeOfDay
	EndTime   schedule.TimeOfDay
}

// Conflict records the existing bookings colliding with one requested date.
type Conflict struct {
	Date       time.Time
	BookingIDs []int64
}

// Resolution is the customer's decision for one conflicting date. Switch
// requires a court; reschedule requires a new window and takes the court
// optionally.
type Resolution struct {
	Action   Action
	CourtID  int64
	NewStart schedule.TimeOfDay
	NewEnd   schedule.TimeOfDay
}

// Resolved is the fold of all resolutions into the two shapes pricing and
// booking creation consume. Both must honor them identically.
type Resolved struct {
	SkipDates []time.Time
	Overrides map[string]schedule.Override
}

// SkipSet returns the skip dates as a key set.
func (r Resolved) SkipSet() map[string]bool {
	skips := make(map[string]bool, len(r.SkipDates))
	for _, date := range r.SkipDates {
		skips[schedule.DateKey(date)] = true
	}
	return skips
}

// UnresolvedError blocks a booking whose conflicting dates lack resolutions.
// Proceeding silently would commit the original, conflicting window.
type UnresolvedError struct {
	Dates []string
}

func (e UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved conflicts on: %s", strings.Join(e.Dates, ", "))
}

// Detect intersects a generated date set with existing bookings. Two windows
// on the same court and date conflict when their half-open intervals overlap.
// The result keeps the date set's ascending order.
func Detect(entries []schedule.DateEntry, existing []Booking) []Conflict {
	byDate := make(map[string][]Booking, len(existing))
	for _, booking := range existing {
		key := schedule.DateKey(booking.Date)
		byDate[key] = append(byDate[key], booking)
	}

	var conflicts []Conflict
	for _, entry := range entries {
		var ids []int64
		for _, booking := range byDate[schedule.DateKey(entry.Date)] {
			if booking.CourtID != entry.CourtID {
				continue
			}
			if entry.StartTime < booking.EndTime && booking.StartTime < entry.EndTime {
				ids = append(ids, booking.ID)
			}
		}
		if len(ids) > 0 {
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			conflicts = append(conflicts, Conflict{Date: entry.Date, BookingIDs: ids})
		}
	}
	return conflicts
}

// Fold turns per-date resolutions into skip dates and overrides.
//
//   - skip: the date joins SkipDates and leaves pricing and creation.
//   - switch: the override carries only the replacement court.
//   - reschedule: the override carries the new window, plus the court only
//     when it differs from the request's base court.
//
// Any conflicting date without a resolution fails closed.
func Fold(conflicts []Conflict, resolutions map[string]Resolution, baseCourtID int64) (Resolved, error) {
	resolved := Resolved{Overrides: make(map[string]schedule.Override)}

	var unresolved []string
	for _, c := range conflicts {
		key := schedule.DateKey(c.Date)
		resolution, ok := resolutions[key]
		if !ok {
			unresolved = append(unresolved, key)
			continue
		}

		switch resolution.Action {
		case ActionSkip:
			resolved.SkipDates = append(resolved.SkipDates, c.Date)

		case ActionSwitch:
			if resolution.CourtID <= 0 {
				return Resolved{}, fmt.Errorf("switch resolution for %s requires a court", key)
			}
			courtID := resolution.CourtID
			resolved.Overrides[key] = schedule.Override{CourtID: &courtID}

		case ActionReschedule:
			if resolution.NewEnd <= resolution.NewStart {
				return Resolved{}, fmt.Errorf("reschedule resolution for %s requires end after start", key)
			}
			start := resolution.NewStart
			end := resolution.NewEnd
			override := schedule.Override{StartTime: &start, EndTime: &end}
			if resolution.CourtID > 0 && resolution.CourtID != baseCourtID {
				courtID := resolution.CourtID
				override.CourtID = &courtID
			}
			resolved.Overrides[key] = override

		default:
			return Resolved{}, fmt.Errorf("unknown resolution action %q for %s", resolution.Action, key)
		}
	}

	if len(unresolved) > 0 {
		return Resolved{}, UnresolvedError{Dates: unresolved}
	}
	return resolved, nil
}
