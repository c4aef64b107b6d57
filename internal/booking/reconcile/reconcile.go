package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/booking/hold"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 150
)

// Push event types that settle a payment session.
const (
	EventPaymentSuccess   = "PAYMENT_SUCCESS"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
)

// ErrUnconfirmed reports an exhausted poll budget with no completion signal.
// It is a timeout, not a failure: the booking may still have completed
// server-side, so the customer is pointed at booking history instead of being
// told the payment failed.
var ErrUnconfirmed = errors.New("payment unconfirmed; check booking history")

// Event is one push-channel message. Only matching booking ids settle a hold.
type Event struct {
	Type      string `json:"type"`
	BookingID int64  `json:"booking_id"`
}

func (e Event) authoritative(bookingID int64) bool {
	if e.BookingID != bookingID {
		return false
	}
	return e.Type == EventPaymentSuccess || e.Type == EventBookingConfirmed
}

// BookingState is the polled slice of a booking's server-side status.
type BookingState struct {
	Status        string
	PaymentStatus string
}

func (s BookingState) paid() bool {
	return s.Status == "confirmed" || s.PaymentStatus == "paid"
}

// StatusFetcher polls the authoritative booking record.
type StatusFetcher interface {
	FetchBookingState(ctx context.Context, bookingID int64) (BookingState, error)
}

type Outcome int

const (
	// OutcomePaid: this reconciler observed completion and settled the hold.
	OutcomePaid Outcome = iota
	// OutcomeTimeout: poll budget exhausted with no signal; hold untouched.
	OutcomeTimeout
	// OutcomeSettledElsewhere: the hold reached a terminal state first
	// (expiry, cancel, or a racing completion path).
	OutcomeSettledElsewhere
	// OutcomeAborted: the surrounding context closed the payment window.
	OutcomeAborted
)

// Reconciler races the push channel against a bounded poll loop for one
// payment session and applies the terminal transition through the hold
// manager's compare-and-set. Both channels funnel into a single actor loop,
// so completion cannot fire twice no matter how signals interleave.
type Reconciler struct {
	manager      *hold.Manager
	bookingID    int64
	events       <-chan Event
	fetcher      StatusFetcher
	pollInterval time.Duration
	maxAttempts  int
	onComplete   func()
	completeOnce sync.Once
	logger       zerolog.Logger
}

type Option func(*Reconciler)

func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithCompletionCallback registers the hook invoked exactly once when this
// reconciler settles the hold as paid.
func WithCompletionCallback(fn func()) Option {
	return func(r *Reconciler) { r.onComplete = fn }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func New(manager *hold.Manager, bookingID int64, events <-chan Event, fetcher StatusFetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		manager:      manager,
		bookingID:    bookingID,
		events:       events,
		fetcher:      fetcher,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		logger: log.With().
			Str("component", "payment_reconciler").
			Int64("booking_id", bookingID).
			Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until the payment session resolves. The poll loop only runs
// while ctx is open; cancel ctx when the external payment window closes.
// Returning from Run tears down both channels, so the loser of the race is
// cancelled rather than left polling a settled hold.
func (r *Reconciler) Run(ctx context.Context) (Outcome, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return OutcomeAborted, ctx.Err()

		case event := <-r.events:
			if !event.authoritative(r.bookingID) {
				continue
			}
			r.logger.Info().Str("event_type", event.Type).Msg("Push channel reported payment completion")
			return r.Complete(ctx), nil

		case <-ticker.C:
			attempts++
			state, err := r.fetcher.FetchBookingState(ctx, r.bookingID)
			if err != nil {
				r.logger.Warn().Err(err).Int("attempt", attempts).Msg("Booking status poll failed")
			} else if state.paid() {
				r.logger.Info().Int("attempt", attempts).Msg("Poll channel reported payment completion")
				return r.Complete(ctx), nil
			}
			if attempts >= r.maxAttempts {
				r.logger.Info().Int("attempts", attempts).Msg("Poll budget exhausted without completion")
				return OutcomeTimeout, ErrUnconfirmed
			}
		}
	}
}

// Complete applies the Paid transition. Safe to call from either channel and
// repeatedly: the hold manager's compare-and-set admits one winner, and the
// completion callback fires at most once per reconciler.
func (r *Reconciler) Complete(ctx context.Context) Outcome {
	if !r.manager.MarkPaid(ctx) {
		return OutcomeSettledElsewhere
	}
	if r.onComplete != nil {
		r.completeOnce.Do(r.onComplete)
	}
	return OutcomePaid
}
