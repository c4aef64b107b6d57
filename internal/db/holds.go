package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/courtbook/courtbook/internal/booking/hold"
)

type HoldRow struct {
	ID         string
	GroupID    string
	BookingIDs string
	CreatedAt  time.Time
	TTLSeconds int64
	Status     string
}

func (q *Queries) UpsertHold(ctx context.Context, row HoldRow) error {
	const query = `
		INSERT INTO holds (id, group_id, booking_ids, created_at, ttl_seconds, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`
	_, err := q.db.ExecContext(ctx, query,
		row.ID, row.GroupID, row.BookingIDs, row.CreatedAt, row.TTLSeconds, row.Status,
	)
	return err
}

func (q *Queries) GetActiveHold(ctx context.Context) (HoldRow, error) {
	const query = `
		SELECT id, group_id, booking_ids, created_at, ttl_seconds, status
		FROM holds WHERE status = 'held' LIMIT 1`
	var row HoldRow
	err := q.db.QueryRowContext(ctx, query).Scan(
		&row.ID, &row.GroupID, &row.BookingIDs, &row.CreatedAt, &row.TTLSeconds, &row.Status,
	)
	return row, err
}

func (q *Queries) DeleteHold(ctx context.Context, id string) error {
	const query = `DELETE FROM holds WHERE id = ?`
	_, err := q.db.ExecContext(ctx, query, id)
	return err
}

// ListExpiredHolds returns held rows whose TTL elapsed before the cutoff.
// These only exist when the process died with a countdown in flight.
func (q *Queries) ListExpiredHolds(ctx context.Context, cutoff time.Time) ([]HoldRow, error) {
	const query = `
		SELECT id, group_id, booking_ids, created_at, ttl_seconds, status
		FROM holds
		WHERE status = 'held'
		  AND datetime(created_at, '+' || ttl_seconds || ' seconds') <= datetime(?)`
	rows, err := q.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []HoldRow
	for rows.Next() {
		var row HoldRow
		if err := rows.Scan(&row.ID, &row.GroupID, &row.BookingIDs, &row.CreatedAt, &row.TTLSeconds, &row.Status); err != nil {
			return nil, err
		}
		holds = append(holds, row)
	}
	return holds, rows.Err()
}

// HoldStore adapts the holds table to the hold.Store interface, persisting
// the single active hold across restarts.
type HoldStore struct {
	queries *Queries
}

func NewHoldStore(database *DB) *HoldStore {
	return &HoldStore{queries: database.Queries}
}

func (s *HoldStore) Save(ctx context.Context, h hold.Hold) error {
	ids, err := json.Marshal(h.BookingIDs)
	if err != nil {
		return fmt.Errorf("encode booking ids: %w", err)
	}
	return s.queries.UpsertHold(ctx, HoldRow{
		ID:         h.ID,
		GroupID:    h.GroupID,
		BookingIDs: string(ids),
		CreatedAt:  h.CreatedAt.UTC(),
		TTLSeconds: int64(h.TTL / time.Second),
		Status:     string(h.Status),
	})
}

func (s *HoldStore) Load(ctx context.Context) (*hold.Hold, error) {
	row, err := s.queries.GetActiveHold(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToHold(row)
}

func (s *HoldStore) Clear(ctx context.Context, holdID string) error {
	return s.queries.DeleteHold(ctx, holdID)
}

func rowToHold(row HoldRow) (*hold.Hold, error) {
	var ids []int64
	if err := json.Unmarshal([]byte(row.BookingIDs), &ids); err != nil {
		return nil, fmt.Errorf("decode booking ids: %w", err)
	}
	return &hold.Hold{
		ID:         row.ID,
		GroupID:    row.GroupID,
		BookingIDs: ids,
		CreatedAt:  row.CreatedAt,
		TTL:        time.Duration(row.TTLSeconds) * time.Second,
		Status:     hold.Status(row.Status),
	}, nil
}
