package hold

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is the fixed hold duration. Expiry is a hard business rule: the
// customer restarts the whole flow, they do not step back one screen.
const DefaultTTL = 300 * time.Second

const (
	ReasonExpired   = "hold_expired"
	ReasonCancelled = "cancelled_by_customer"
)

var (
	// ErrHoldExpired is returned to callers whose hold reached its TTL.
	ErrHoldExpired = errors.New("hold expired")
	// ErrReleaseFailed reports a failed collaborator release. Local state is
	// still cleared; the server-side discrepancy reconciles later.
	ErrReleaseFailed = errors.New("hold release failed upstream")
	// ErrAlreadySettled reports a transition attempted after a terminal state.
	ErrAlreadySettled = errors.New("hold already settled")
)

type Status string

const (
	StatusHeld      Status = "held"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired || s == StatusCancelled
}

// Hold is a time-boxed provisional reservation over one or more bookings.
type Hold struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	BookingIDs []int64   `json:"booking_ids"`
	CreatedAt  time.Time `json:"created_at"`
	TTL        time.Duration
	Status     Status `json:"status"`
}

func (h Hold) ExpiresAt() time.Time {
	return h.CreatedAt.Add(h.TTL)
}

// Releaser cancels the held bookings upstream. Implementations must be safe
// to call with a reason string and should be idempotent server-side.
type Releaser interface {
	ReleaseHold(ctx context.Context, h Hold, reason string) error
}

// Store persists the single active hold across process restarts.
type Store interface {
	Save(ctx context.Context, h Hold) error
	Load(ctx context.Context) (*Hold, error)
	Clear(ctx context.Context, holdID string) error
}

// Manager owns every state transition of one hold. All transitions are
// compare-and-set under one mutex: the first terminal writer wins and every
// later timer or signal becomes a no-op. The expiry timer is stopped, not
// merely ignored, on any terminal transition.
type Manager struct {
	mu       sync.Mutex
	hold     Hold
	timer    *time.Timer
	releaser Releaser
	store    Store
	expired  func(Hold)
	logger   zerolog.Logger
}

type ManagerOption func(*Manager)

// WithExpiryCallback registers the signal sent when the TTL fires, telling
// the owning flow to restart from the beginning.
func WithExpiryCallback(fn func(Hold)) ManagerOption {
	return func(m *Manager) { m.expired = fn }
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func NewManager(h Hold, releaser Releaser, store Store, opts ...ManagerOption) *Manager {
	if h.TTL <= 0 {
		h.TTL = DefaultTTL
	}
	if h.Status == "" {
		h.Status = StatusHeld
	}
	m := &Manager{
		hold:     h,
		releaser: releaser,
		store:    store,
		logger:   log.With().Str("component", "hold_manager").Str("hold_id", h.ID).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start persists the hold and arms the expiry countdown. A hold restored
// after a restart gets only its remaining TTL; one already past its TTL
// expires immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.hold.Status.Terminal() {
		m.mu.Unlock()
		return ErrAlreadySettled
	}
	if m.store != nil {
		if err := m.store.Save(ctx, m.hold); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	remaining := time.Until(m.hold.ExpiresAt())
	if remaining < 0 {
		remaining = 0
	}
	m.timer = time.AfterFunc(remaining, m.expire)
	m.mu.Unlock()

	m.logger.Info().
		Dur("remaining", remaining).
		Ints64("booking_ids", m.hold.BookingIDs).
		Msg("Hold countdown started")
	return nil
}

// Snapshot returns a copy of the hold's current state.
func (m *Manager) Snapshot() Hold {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hold
}

// Remaining returns the countdown left on the hold, zero once terminal.
func (m *Manager) Remaining(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold.Status.Terminal() {
		return 0
	}
	remaining := m.hold.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// transition is the single compare-and-set point. It reports whether this
// caller won the terminal transition and stops the countdown when it did.
func (m *Manager) transition(to Status) (Hold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold.Status != StatusHeld {
		return m.hold, false
	}
	m.hold.Status = to
	if m.timer != nil {
		m.timer.Stop()
	}
	return m.hold, true
}

// MarkPaid moves the hold to Paid and clears persisted state. It reports
// whether this call performed the transition; losers must not re-run
// completion side effects.
func (m *Manager) MarkPaid(ctx context.Context) bool {
	h, won := m.transition(StatusPaid)
	if !won {
		return false
	}
	m.clearStore(ctx, h.ID)
	m.logger.Info().Str("group_id", h.GroupID).Msg("Hold settled as paid")
	return true
}

// Cancel releases the hold at the customer's request. The collaborator is
// called before local state is cleared; a collaborator failure is surfaced as
// ErrReleaseFailed while local state is still cleared best-effort.
func (m *Manager) Cancel(ctx context.Context, reason string) error {
	if reason == "" {
		reason = ReasonCancelled
	}
	h, won := m.transition(StatusCancelled)
	if !won {
		if h.Status == StatusExpired {
			return ErrHoldExpired
		}
		return ErrAlreadySettled
	}

	var releaseErr error
	if m.releaser != nil {
		if err := m.releaser.ReleaseHold(ctx, h, reason); err != nil {
			m.logger.Warn().Err(err).Str("reason", reason).Msg("Hold release failed; clearing local state anyway")
			releaseErr = errors.Join(ErrReleaseFailed, err)
		}
	}
	m.clearStore(ctx, h.ID)
	if releaseErr != nil {
		return releaseErr
	}
	m.logger.Info().Str("reason", reason).Msg("Hold cancelled")
	return nil
}

// expire fires from the countdown timer. Losing the CAS means payment or
// cancellation beat the clock and the expiry becomes a no-op.
func (m *Manager) expire() {
	h, won := m.transition(StatusExpired)
	if !won {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if m.releaser != nil {
		if err := m.releaser.ReleaseHold(ctx, h, ReasonExpired); err != nil {
			m.logger.Warn().Err(err).Msg("Expired hold release failed; clearing local state anyway")
		}
	}
	m.clearStore(ctx, h.ID)
	m.logger.Info().Time("expired_at", h.ExpiresAt()).Msg("Hold expired")

	if m.expired != nil {
		m.expired(h)
	}
}

func (m *Manager) clearStore(ctx context.Context, holdID string) {
	if m.store == nil {
		return
	}
	if err := m.store.Clear(ctx, holdID); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear persisted hold")
	}
}
