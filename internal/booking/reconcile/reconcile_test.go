package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courtbook/courtbook/internal/booking/hold"
)

type fakeFetcher struct {
	mu     sync.Mutex
	states []BookingState
	calls  int
	err    error
}

func (f *fakeFetcher) FetchBookingState(context.Context, int64) (BookingState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return BookingState{}, f.err
	}
	state := f.states[len(f.states)-1]
	if f.calls < len(f.states) {
		state = f.states[f.calls]
	}
	f.calls++
	return state, nil
}

func unpaid() BookingState { return BookingState{Status: "pending", PaymentStatus: "unpaid"} }
func paid() BookingState   { return BookingState{Status: "confirmed", PaymentStatus: "paid"} }

func newHeldManager(t *testing.T) *hold.Manager {
	t.Helper()
	m := hold.NewManager(hold.Hold{
		ID:         "hold-1",
		GroupID:    "group-1",
		BookingIDs: []int64{42},
		CreatedAt:  time.Now(),
		TTL:        time.Hour,
	}, nil, hold.NewMemoryStore())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start hold: %v", err)
	}
	return m
}

func TestRunPushEventWins(t *testing.T) {
	manager := newHeldManager(t)
	events := make(chan Event, 4)
	var completions atomic.Int32

	r := New(manager, 42, events, &fakeFetcher{states: []BookingState{unpaid()}},
		WithPollInterval(time.Hour), // poll must not be the one that settles
		WithCompletionCallback(func() { completions.Add(1) }),
	)

	// Signals for other bookings and unknown types must be ignored.
	events <- Event{Type: EventPaymentSuccess, BookingID: 7}
	events <- Event{Type: "PAYMENT_PENDING", BookingID: 42}
	events <- Event{Type: EventBookingConfirmed, BookingID: 42}

	outcome, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomePaid {
		t.Fatalf("outcome = %v, want OutcomePaid", outcome)
	}
	if got := manager.Snapshot().Status; got != hold.StatusPaid {
		t.Errorf("hold status = %s, want paid", got)
	}
	if completions.Load() != 1 {
		t.Errorf("completions = %d, want 1", completions.Load())
	}
}

func TestRunPollWins(t *testing.T) {
	manager := newHeldManager(t)
	fetcher := &fakeFetcher{states: []BookingState{unpaid(), unpaid(), paid()}}
	var completions atomic.Int32

	r := New(manager, 42, make(chan Event), fetcher,
		WithPollInterval(5*time.Millisecond),
		WithCompletionCallback(func() { completions.Add(1) }),
	)

	outcome, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomePaid {
		t.Fatalf("outcome = %v, want OutcomePaid", outcome)
	}
	if completions.Load() != 1 {
		t.Errorf("completions = %d, want 1", completions.Load())
	}
}

func TestRunTimeoutLeavesHoldUntouched(t *testing.T) {
	manager := newHeldManager(t)
	r := New(manager, 42, make(chan Event), &fakeFetcher{states: []BookingState{unpaid()}},
		WithPollInterval(time.Millisecond),
		WithMaxAttempts(3),
	)

	outcome, err := r.Run(context.Background())
	if outcome != OutcomeTimeout {
		t.Fatalf("outcome = %v, want OutcomeTimeout", outcome)
	}
	if !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("err = %v, want ErrUnconfirmed", err)
	}
	// Timeout is inconclusive: the hold keeps running until its own TTL.
	if got := manager.Snapshot().Status; got != hold.StatusHeld {
		t.Errorf("hold status = %s, want held", got)
	}
}

func TestRunPollErrorsCountAgainstBudget(t *testing.T) {
	manager := newHeldManager(t)
	r := New(manager, 42, make(chan Event), &fakeFetcher{err: errors.New("db down")},
		WithPollInterval(time.Millisecond),
		WithMaxAttempts(2),
	)

	outcome, err := r.Run(context.Background())
	if outcome != OutcomeTimeout || !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("Run = (%v, %v), want timeout", outcome, err)
	}
}

func TestRunAborted(t *testing.T) {
	manager := newHeldManager(t)
	r := New(manager, 42, make(chan Event), &fakeFetcher{states: []BookingState{unpaid()}},
		WithPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := r.Run(ctx)
	if outcome != OutcomeAborted || !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = (%v, %v), want aborted", outcome, err)
	}
}

func TestCompleteSettledElsewhere(t *testing.T) {
	manager := newHeldManager(t)
	manager.MarkPaid(context.Background())

	var completions atomic.Int32
	r := New(manager, 42, make(chan Event), &fakeFetcher{states: []BookingState{paid()}},
		WithCompletionCallback(func() { completions.Add(1) }),
	)

	if got := r.Complete(context.Background()); got != OutcomeSettledElsewhere {
		t.Fatalf("Complete = %v, want OutcomeSettledElsewhere", got)
	}
	if completions.Load() != 0 {
		t.Error("losing Complete must not run the callback")
	}
}

func TestCompleteIdempotent(t *testing.T) {
	manager := newHeldManager(t)
	var completions atomic.Int32
	r := New(manager, 42, make(chan Event), &fakeFetcher{states: []BookingState{paid()}},
		WithCompletionCallback(func() { completions.Add(1) }),
	)

	if got := r.Complete(context.Background()); got != OutcomePaid {
		t.Fatalf("first Complete = %v, want OutcomePaid", got)
	}
	if got := r.Complete(context.Background()); got != OutcomeSettledElsewhere {
		t.Fatalf("second Complete = %v, want OutcomeSettledElsewhere", got)
	}
	if completions.Load() != 1 {
		t.Errorf("completions = %d, want exactly 1", completions.Load())
	}
}
