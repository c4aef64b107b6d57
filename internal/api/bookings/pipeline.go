package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/booking/conflict"
	"github.com/courtbook/courtbook/internal/booking/pricing"
	"github.com/courtbook/courtbook/internal/booking/schedule"
	appdb "github.com/courtbook/courtbook/internal/db"
)

// venueConfig is the resolved, typed view of a venue's pricing and calendar
// rows. It is built once per request at the API boundary so the engine
// packages never see raw database shapes.
type venueConfig struct {
	Venue   appdb.Venue
	Hours   schedule.Hours
	Pricing pricing.Config
}

func loadVenueConfig(ctx context.Context, q *appdb.Queries, venueID int64) (venueConfig, error) {
	venue, err := q.GetVenue(ctx, venueID)
	if err != nil {
		return venueConfig{}, fmt.Errorf("load venue %d: %w", venueID, err)
	}

	hourRows, err := q.ListOperatingHours(ctx, venueID)
	if err != nil {
		return venueConfig{}, fmt.Errorf("load operating hours: %w", err)
	}
	hours := make(schedule.Hours, len(hourRows))
	for _, row := range hourRows {
		opens, err := schedule.ParseTimeOfDay(row.OpensAt)
		if err != nil {
			return venueConfig{}, fmt.Errorf("invalid opens_at for day %d: %w", row.DayOfWeek, err)
		}
		closes, err := schedule.ParseTimeOfDay(row.ClosesAt)
		if err != nil {
			return venueConfig{}, fmt.Errorf("invalid closes_at for day %d: %w", row.DayOfWeek, err)
		}
		hours[time.Weekday(row.DayOfWeek)] = schedule.Window{Open: opens, Close: closes}
	}

	rangeRows, err := q.ListPriceRanges(ctx, venueID)
	if err != nil {
		return venueConfig{}, fmt.Errorf("load price ranges: %w", err)
	}
	ranges := make([]pricing.PriceRange, 0, len(rangeRows))
	for _, row := range rangeRows {
		start, err := schedule.ParseTimeOfDay(row.StartsAt)
		if err != nil {
			return venueConfig{}, fmt.Errorf("invalid price range start for day %d: %w", row.DayOfWeek, err)
		}
		end, err := schedule.ParseTimeOfDay(row.EndsAt)
		if err != nil {
			return venueConfig{}, fmt.Errorf("invalid price range end for day %d: %w", row.DayOfWeek, err)
		}
		ranges = append(ranges, pricing.PriceRange{
			Weekday:    time.Weekday(row.DayOfWeek),
			Start:      start,
			End:        end,
			Multiplier: row.Multiplier,
		})
	}

	return venueConfig{
		Venue: venue,
		Hours: hours,
		Pricing: pricing.Config{
			BasePrice:    venue.BasePrice,
			SlotDuration: time.Duration(venue.SlotDurationMinutes) * time.Minute,
			PriceRanges:  ranges,
		},
	}, nil
}

// detectConflicts loads the venue's active bookings over the date set's span
// and intersects them with the generated entries.
func detectConflicts(ctx context.Context, q *appdb.Queries, venueID int64, entries []schedule.DateEntry) ([]conflict.Conflict, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	from := schedule.DateKey(entries[0].Date)
	to := schedule.DateKey(entries[len(entries)-1].Date)

	rows, err := q.ListActiveBookingsInRange(ctx, venueID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load existing bookings: %w", err)
	}

	existing := make([]conflict.Booking, 0, len(rows))
	for _, row := range rows {
		date, err := schedule.ParseDate(row.BookingDate)
		if err != nil {
			return nil, fmt.Errorf("booking %d has invalid date %q: %w", row.ID, row.BookingDate, err)
		}
		start, err := schedule.ParseTimeOfDay(row.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("booking %d has invalid start time: %w", row.ID, err)
		}
		end, err := schedule.ParseTimeOfDay(row.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("booking %d has invalid end time: %w", row.ID, err)
		}
		existing = append(existing, conflict.Booking{
			ID:        row.ID,
			CourtID:   row.CourtID,
			Date:      date,
			StartTime: start,
			EndTime:   end,
		})
	}
	return conflict.Detect(entries, existing), nil
}

// validation is the one normalized result every validate/create path produces.
type validation struct {
	Entries   []schedule.DateEntry
	Skipped   []time.Time
	Conflicts []conflict.Conflict
	Resolved  conflict.Resolved
	Summary   pricing.Summary
}

// runValidation executes the full generate → detect → fold → quote pipeline.
// With unresolved conflicts it returns the conflict list and a zero summary;
// the caller decides whether that blocks (create) or just reports (validate).
func runValidation(ctx context.Context, q *appdb.Queries, cfg venueConfig, baseCourtID int64, entries []schedule.DateEntry, skipped []time.Time, resolutions map[string]conflict.Resolution, discount pricing.Discount) (validation, error) {
	result := validation{Entries: entries, Skipped: skipped}

	conflicts, err := detectConflicts(ctx, q, cfg.Venue.ID, entries)
	if err != nil {
		return validation{}, err
	}
	result.Conflicts = conflicts

	resolved, err := conflict.Fold(conflicts, resolutions, baseCourtID)
	if err != nil {
		return result, err
	}
	result.Resolved = resolved

	summary, err := pricing.Quote(cfg.Pricing, entries, resolved.Overrides, resolved.SkipSet(), cfg.Venue.AmenitiesFee, discount)
	if err != nil {
		return result, err
	}
	result.Summary = summary
	return result, nil
}

// normalizePhone validates and formats a customer phone number to E.164.
// An empty phone is allowed; a malformed one is a field error.
func normalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", apiutil.FieldError{Field: "customer_phone", Reason: "must be a valid phone number"}
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", apiutil.FieldError{Field: "customer_phone", Reason: "must be a valid phone number"}
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
