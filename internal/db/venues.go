package db

import (
	"context"
)

type Venue struct {
	ID                  int64
	Name                string
	Slug                string
	Timezone            string
	BasePrice           int64
	SlotDurationMinutes int64
	AmenitiesFee        int64
}

type Court struct {
	ID      int64
	VenueID int64
	Name    string
	Status  string
}

type OperatingHour struct {
	ID        int64
	VenueID   int64
	DayOfWeek int64
	OpensAt   string
	ClosesAt  string
}

type PriceRangeRow struct {
	ID         int64
	VenueID    int64
	DayOfWeek  int64
	StartsAt   string
	EndsAt     string
	Multiplier float64
}

func (q *Queries) GetVenue(ctx context.Context, id int64) (Venue, error) {
	const query = `
		SELECT id, name, slug, timezone, base_price, slot_duration_minutes, amenities_fee
		FROM venues WHERE id = ?`
	var v Venue
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Slug, &v.Timezone, &v.BasePrice, &v.SlotDurationMinutes, &v.AmenitiesFee,
	)
	return v, err
}

func (q *Queries) GetCourt(ctx context.Context, id int64) (Court, error) {
	const query = `SELECT id, venue_id, name, status FROM courts WHERE id = ?`
	var c Court
	err := q.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.VenueID, &c.Name, &c.Status)
	return c, err
}

func (q *Queries) ListCourts(ctx context.Context, venueID int64) ([]Court, error) {
	const query = `SELECT id, venue_id, name, status FROM courts WHERE venue_id = ? ORDER BY id`
	rows, err := q.db.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courts []Court
	for rows.Next() {
		var c Court
		if err := rows.Scan(&c.ID, &c.VenueID, &c.Name, &c.Status); err != nil {
			return nil, err
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

func (q *Queries) ListOperatingHours(ctx context.Context, venueID int64) ([]OperatingHour, error) {
	const query = `
		SELECT id, venue_id, day_of_week, opens_at, closes_at
		FROM operating_hours WHERE venue_id = ? ORDER BY day_of_week`
	rows, err := q.db.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []OperatingHour
	for rows.Next() {
		var h OperatingHour
		if err := rows.Scan(&h.ID, &h.VenueID, &h.DayOfWeek, &h.OpensAt, &h.ClosesAt); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

func (q *Queries) ListPriceRanges(ctx context.Context, venueID int64) ([]PriceRangeRow, error) {
	const query = `
		SELECT id, venue_id, day_of_week, starts_at, ends_at, multiplier
		FROM price_ranges WHERE venue_id = ? ORDER BY day_of_week, starts_at`
	rows, err := q.db.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []PriceRangeRow
	for rows.Next() {
		var r PriceRangeRow
		if err := rows.Scan(&r.ID, &r.VenueID, &r.DayOfWeek, &r.StartsAt, &r.EndsAt, &r.Multiplier); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}
