package notify

import (
	"testing"
	"time"

	"github.com/courtbook/courtbook/internal/booking/reconcile"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()

	first, unsubFirst := hub.Subscribe()
	second, unsubSecond := hub.Subscribe()
	defer unsubFirst()
	defer unsubSecond()

	event := reconcile.Event{Type: reconcile.EventPaymentSuccess, BookingID: 7}
	hub.Publish(event)

	for name, ch := range map[string]<-chan reconcile.Event{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got != event {
				t.Errorf("%s subscriber got %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber never received the event", name)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()
	unsubscribe()

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	hub.Publish(reconcile.Event{Type: reconcile.EventPaymentSuccess, BookingID: 1})

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(reconcile.Event{Type: reconcile.EventPaymentSuccess, BookingID: int64(i)})
	}

	// The buffer holds the first subscriberBuffer events; the rest were
	// dropped rather than blocking Publish.
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("received %d events, want %d", received, subscriberBuffer)
			}
			return
		}
	}
}
