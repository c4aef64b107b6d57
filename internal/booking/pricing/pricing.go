package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/courtbook/courtbook/internal/booking/schedule"
)

// PlatformFeeRate is the platform's cut applied on top of the subtotal.
const PlatformFeeRate = 0.05

// PriceRange scales the base price for part of a weekday. Ranges are matched
// against slot start times on the half-open interval [Start, End).
type PriceRange struct {
	Weekday    time.Weekday
	Start      schedule.TimeOfDay
	End        schedule.TimeOfDay
	Multiplier float64
}

// ResolveMultiplier returns the multiplier of the first range covering the
// given weekday and clock time, or 1.0 when none matches. Ranges are not
// required to cover the whole operating window; uncovered time is priced at
// the base rate. Total: never fails.
func ResolveMultiplier(day time.Weekday, at schedule.TimeOfDay, ranges []PriceRange) float64 {
	for _, r := range ranges {
		if r.Weekday != day {
			continue
		}
		if at >= r.Start && at < r.End {
			return r.Multiplier
		}
	}
	return 1.0
}

// Config is the venue-level pricing input, read-only for this package.
type Config struct {
	BasePrice    int64
	SlotDuration time.Duration
	PriceRanges  []PriceRange
}

// Discount is either a rate on (subtotal + platform fee) or a flat amount,
// never both in one summary.
type Discount struct {
	Rate   float64
	Amount int64
}

func (d Discount) Validate() error {
	if d.Rate != 0 && d.Amount != 0 {
		return errors.New("discount rate and amount are mutually exclusive")
	}
	if d.Rate < 0 || d.Rate > 1 {
		return errors.New("discount rate must be between 0 and 1")
	}
	if d.Amount < 0 {
		return errors.New("discount amount must not be negative")
	}
	return nil
}

// Summary is the normalized pricing breakdown for one booking set.
type Summary struct {
	PerDate         map[string]int64 `json:"per_date"`
	Subtotal        int64            `json:"subtotal"`
	PlatformFee     int64            `json:"platform_fee"`
	DiscountAmount  int64            `json:"discount_amount"`
	GrandTotal      int64            `json:"grand_total"`
	BookedDateCount int              `json:"booked_date_count"`
}

// Quote prices a generated date set. Skipped dates are excluded entirely;
// overridden dates are priced over their effective window. The amenity fee is
// flat per booked date. Float accumulation is kept per date and rounded only
// after summing its slots, so rounding error never compounds across slots.
func Quote(cfg Config, entries []schedule.DateEntry, overrides map[string]schedule.Override, skips map[string]bool, amenityFee int64, discount Discount) (Summary, error) {
	if cfg.SlotDuration <= 0 {
		return Summary{}, errors.New("slot duration must be positive")
	}
	if err := discount.Validate(); err != nil {
		return Summary{}, err
	}

	slotHours := cfg.SlotDuration.Minutes() / 60
	perDate := make(map[string]int64, len(entries))
	var subtotal int64
	booked := 0

	for _, entry := range entries {
		key := schedule.DateKey(entry.Date)
		if skips[key] {
			continue
		}
		effective := entry
		if override, ok := overrides[key]; ok {
			effective = entry.Effective(&override)
		}
		if effective.EndTime <= effective.StartTime {
			return Summary{}, fmt.Errorf("invalid time window for %s: end must be after start", key)
		}

		var amount float64
		for slot := effective.StartTime; slot.Add(cfg.SlotDuration) <= effective.EndTime; slot = slot.Add(cfg.SlotDuration) {
			multiplier := ResolveMultiplier(entry.Date.Weekday(), slot, cfg.PriceRanges)
			amount += slotHours * float64(cfg.BasePrice) * multiplier
		}

		dateAmount := roundMoney(amount) + amenityFee
		perDate[key] = dateAmount
		subtotal += dateAmount
		booked++
	}

	platformFee := roundMoney(float64(subtotal) * PlatformFeeRate)
	discountAmount := discount.Amount
	if discount.Rate > 0 {
		discountAmount = roundMoney(float64(subtotal+platformFee) * discount.Rate)
	}

	return Summary{
		PerDate:         perDate,
		Subtotal:        subtotal,
		PlatformFee:     platformFee,
		DiscountAmount:  discountAmount,
		GrandTotal:      subtotal + platformFee - discountAmount,
		BookedDateCount: booked,
	}, nil
}

func roundMoney(value float64) int64 {
	return int64(math.Round(value))
}
