package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	appdb "github.com/courtbook/courtbook/internal/db"
)

const (
	holdSweepInterval = time.Minute
	holdSweepTimeout  = 30 * time.Second
)

// RegisterHoldSweepJob sweeps persisted holds whose TTL elapsed while no
// in-process countdown was armed. In normal operation the hold manager expires
// holds itself; rows only linger when the process died mid-countdown, so the
// sweep is the restart-recovery path.
func RegisterHoldSweepJob(database *appdb.DB) error {
	_, err := AddIntervalJob("expired_hold_sweep", holdSweepInterval, func() {
		sweepExpiredHolds(database)
	})
	return err
}

func sweepExpiredHolds(database *appdb.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), holdSweepTimeout)
	defer cancel()

	logger := log.With().Str("job_name", "expired_hold_sweep").Logger()

	rows, err := database.Queries.ListExpiredHolds(ctx, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list expired holds")
		return
	}

	for _, row := range rows {
		var bookingIDs []int64
		if err := json.Unmarshal([]byte(row.BookingIDs), &bookingIDs); err != nil {
			logger.Error().Err(err).Str("hold_id", row.ID).Msg("Hold row has malformed booking ids")
			continue
		}
		if err := database.Queries.UpdateBookingStatuses(ctx, bookingIDs, appdb.BookingStatusExpired, "hold_expired"); err != nil {
			logger.Error().Err(err).Str("hold_id", row.ID).Msg("Failed to expire bookings for stale hold")
			continue
		}
		if err := database.Queries.DeleteHold(ctx, row.ID); err != nil {
			logger.Error().Err(err).Str("hold_id", row.ID).Msg("Failed to delete stale hold")
			continue
		}
		logger.Info().
			Str("hold_id", row.ID).
			Str("group_id", row.GroupID).
			Ints64("booking_ids", bookingIDs).
			Msg("Swept stale hold")
	}
}
