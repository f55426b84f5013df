package domain

import (
	"time"
)

// DateSession is one dated occurrence of an event. The backend assigns the ID
// when the event is published; a draft session has no ID yet.
type DateSession struct {
	ID      string
	StartAt time.Time
	EndAt   time.Time
}

func (d DateSession) Valid() bool {
	return d.StartAt.Before(d.EndAt)
}

// DraftSchedule is a locally drafted session, before the backend has assigned
// an identifier.
type DraftSchedule struct {
	StartAt time.Time
	EndAt   time.Time
}

// RemoteSession is a backend-assigned session returned by draft-event
// creation. Start/End may be zero in degraded responses.
type RemoteSession struct {
	ID      string
	StartAt time.Time
	EndAt   time.Time
}

// TicketOffering is a priced, quantity-limited ticket type for a date-session.
// Owned by the backend; quantities change only through reservation.
type TicketOffering struct {
	ID            string
	DateSessionID string
	TypeCode      string
	UnitPrice     int64
	Label         string
	Available     int
}

// SelectionEntry maps a selection key (direct or composite) to a requested
// quantity. Lives only in memory for the duration of a checkout.
type SelectionEntry struct {
	Key      string
	Quantity int
}

// HoldEntry is one ticket-type line inside a reservation request.
type HoldEntry struct {
	TypeCode string
	Quantity int
}

// ReservationHold mirrors a backend-side time-boxed hold. The backend copy is
// authoritative; this one exists so compensation can name the hold.
type ReservationHold struct {
	ID            string
	DateSessionID string
	Entries       []HoldEntry
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// PaymentOrder references the canonical hold of a fully reserved checkout
// attempt. Created at most once per attempt.
type PaymentOrder struct {
	ID          string
	HoldID      string
	Subtotal    int64
	ServiceFee  int64
	Total       int64
	RedirectURL string
}

// BuyerContext carries the user and callback state a checkout needs, passed
// explicitly instead of read from ambient globals.
type BuyerContext struct {
	BuyerID     string
	CallbackURL string
}
