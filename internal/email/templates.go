package email

import (
	"fmt"
	"strings"
)

type Message struct {
	Subject string
	Body    string
}

type PaymentConfirmationDetails struct {
	VenueName  string
	CourtName  string
	Dates      []string
	TimeRange  string
	GrandTotal int64
}

type HoldExpiredDetails struct {
	VenueName string
	Dates     []string
}

// BuildPaymentConfirmation summarizes a paid booking set, one line per date.
func BuildPaymentConfirmation(details PaymentConfirmationDetails) Message {
	var body strings.Builder
	body.WriteString("Your booking is confirmed.\n\n")
	fmt.Fprintf(&body, "Venue: %s\n", details.VenueName)
	if details.CourtName != "" {
		fmt.Fprintf(&body, "Court: %s\n", details.CourtName)
	}
	if details.TimeRange != "" {
		fmt.Fprintf(&body, "Time: %s\n", details.TimeRange)
	}
	body.WriteString("Dates:\n")
	for _, date := range details.Dates {
		fmt.Fprintf(&body, "  - %s\n", date)
	}
	fmt.Fprintf(&body, "\nTotal paid: %d\n", details.GrandTotal)
	body.WriteString("\nSee you on the court!\n")

	return Message{
		Subject: fmt.Sprintf("Booking confirmed at %s", details.VenueName),
		Body:    body.String(),
	}
}

// BuildHoldExpired tells the customer their reservation lapsed and that the
// flow must be restarted, since availability may have changed.
func BuildHoldExpired(details HoldExpiredDetails) Message {
	var body strings.Builder
	body.WriteString("Your reservation hold has expired before payment completed.\n\n")
	fmt.Fprintf(&body, "Venue: %s\n", details.VenueName)
	body.WriteString("Dates released:\n")
	for _, date := range details.Dates {
		fmt.Fprintf(&body, "  - %s\n", date)
	}
	body.WriteString("\nThe dates are available to other customers again. Please start a new booking if you still want them.\n")

	return Message{
		Subject: fmt.Sprintf("Reservation hold expired at %s", details.VenueName),
		Body:    body.String(),
	}
}
