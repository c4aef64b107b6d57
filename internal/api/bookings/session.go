package bookings

import (
	"context"
	"sync"

	"github.com/courtbook/courtbook/internal/booking/hold"
	"github.com/courtbook/courtbook/internal/booking/reconcile"
	appdb "github.com/courtbook/courtbook/internal/db"
)

// bookingReleaser is the cancel collaborator the hold manager calls before
// clearing local state. Expired holds mark their bookings expired; everything
// else is a cancellation. The underlying update skips already-terminal rows,
// keeping repeated releases idempotent.
type bookingReleaser struct {
	database *appdb.DB
}

func (r bookingReleaser) ReleaseHold(ctx context.Context, h hold.Hold, reason string) error {
	status := appdb.BookingStatusCancelled
	if reason == hold.ReasonExpired {
		status = appdb.BookingStatusExpired
	}
	return r.database.Queries.UpdateBookingStatuses(ctx, h.BookingIDs, status, reason)
}

// bookingStateFetcher backs the reconciliation poll channel with the
// authoritative booking row.
type bookingStateFetcher struct {
	queries *appdb.Queries
}

func (f bookingStateFetcher) FetchBookingState(ctx context.Context, bookingID int64) (reconcile.BookingState, error) {
	booking, err := f.queries.GetBooking(ctx, bookingID)
	if err != nil {
		return reconcile.BookingState{}, err
	}
	return reconcile.BookingState{
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
	}, nil
}

// holdSession tracks the single in-flight hold and its reconciliation loop.
// One active hold at a time is a business rule, not a technical limit.
type holdSession struct {
	manager       *hold.Manager
	groupID       string
	bookingIDs    []int64
	stopReconcile context.CancelFunc
}

func (s *holdSession) owns(bookingID int64) bool {
	for _, id := range s.bookingIDs {
		if id == bookingID {
			return true
		}
	}
	return false
}

var (
	sessionMu sync.Mutex
	session   *holdSession
)

func setSession(s *holdSession) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if session != nil && session.stopReconcile != nil {
		session.stopReconcile()
	}
	session = s
}

func currentSession() *holdSession {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return session
}

// dropSession forgets the session for the given hold id, stopping its
// reconciliation loop. Later signals against the hold are no-ops by way of
// the manager's compare-and-set.
func dropSession(holdID string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if session == nil || session.manager.Snapshot().ID != holdID {
		return
	}
	if session.stopReconcile != nil {
		session.stopReconcile()
	}
	session = nil
}

func setSessionReconcileCancel(holdID string, cancel context.CancelFunc) bool {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if session == nil || session.manager.Snapshot().ID != holdID {
		return false
	}
	if session.stopReconcile != nil {
		session.stopReconcile()
	}
	session.stopReconcile = cancel
	return true
}
