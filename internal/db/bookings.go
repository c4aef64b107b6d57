package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusExpired   = "expired"

	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

type Booking struct {
	ID                 int64
	VenueID            int64
	CourtID            int64
	GroupID            string
	BookingDate        string
	StartsAt           string
	EndsAt             string
	Status             string
	PaymentStatus      string
	BookingAmount      int64
	AmenitiesFee       int64
	PlatformFee        int64
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	CancellationReason string
	CreatedAt          time.Time
}

type CreateBookingParams struct {
	VenueID       int64
	CourtID       int64
	GroupID       string
	BookingDate   string
	StartsAt      string
	EndsAt        string
	BookingAmount int64
	AmenitiesFee  int64
	PlatformFee   int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

const bookingColumns = `
	id, venue_id, court_id, group_id, booking_date, starts_at, ends_at,
	status, payment_status, booking_amount, amenities_fee, platform_fee,
	customer_name, customer_email, customer_phone, cancellation_reason, created_at`

func scanBooking(row interface{ Scan(...any) error }) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.VenueID, &b.CourtID, &b.GroupID, &b.BookingDate, &b.StartsAt, &b.EndsAt,
		&b.Status, &b.PaymentStatus, &b.BookingAmount, &b.AmenitiesFee, &b.PlatformFee,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.CancellationReason, &b.CreatedAt,
	)
	return b, err
}

func (q *Queries) CreateBooking(ctx context.Context, params CreateBookingParams) (Booking, error) {
	const query = `
		INSERT INTO bookings (
			venue_id, court_id, group_id, booking_date, starts_at, ends_at,
			booking_amount, amenities_fee, platform_fee,
			customer_name, customer_email, customer_phone
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := q.db.ExecContext(ctx, query,
		params.VenueID, params.CourtID, params.GroupID, params.BookingDate,
		params.StartsAt, params.EndsAt,
		params.BookingAmount, params.AmenitiesFee, params.PlatformFee,
		params.CustomerName, params.CustomerEmail, params.CustomerPhone,
	)
	if err != nil {
		return Booking{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Booking{}, err
	}
	return q.GetBooking(ctx, id)
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(q.db.QueryRowContext(ctx, query, id))
}

func (q *Queries) ListBookingsByGroup(ctx context.Context, groupID string) ([]Booking, error) {
	query := `SELECT` + bookingColumns + ` FROM bookings WHERE group_id = ? ORDER BY booking_date`
	rows, err := q.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListActiveBookingsInRange returns pending and confirmed bookings of a venue
// between two dates inclusive, the input to conflict detection.
func (q *Queries) ListActiveBookingsInRange(ctx context.Context, venueID int64, dateFrom, dateTo string) ([]Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE venue_id = ?
		  AND booking_date BETWEEN ? AND ?
		  AND status IN ('pending', 'confirmed')
		ORDER BY booking_date, starts_at`
	rows, err := q.db.QueryContext(ctx, query, venueID, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatuses moves a set of bookings to the given status with a
// cancellation reason. Already-terminal rows are left untouched so repeated
// cancel calls stay idempotent.
func (q *Queries) UpdateBookingStatuses(ctx context.Context, ids []int64, status, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	query := fmt.Sprintf(`
		UPDATE bookings
		SET status = ?, cancellation_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s) AND status IN ('pending', 'confirmed')`, placeholders)

	args := make([]any, 0, len(ids)+2)
	args = append(args, status, reason)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

// MarkBookingsPaid confirms a set of bookings and flags them paid.
func (q *Queries) MarkBookingsPaid(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	query := fmt.Sprintf(`
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s)`, placeholders)

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

// CancelGroup cancels every still-active booking of a recurring group.
func (q *Queries) CancelGroup(ctx context.Context, groupID, status, reason string) error {
	const query = `
		UPDATE bookings
		SET status = ?, cancellation_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE group_id = ? AND status IN ('pending', 'confirmed')`
	_, err := q.db.ExecContext(ctx, query, status, reason, groupID)
	return err
}
