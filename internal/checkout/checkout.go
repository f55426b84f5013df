// Package checkout owns the ticket checkout workflow: selection resolution
// and aggregation, one time-boxed reservation hold per date-session, a 600
// second countdown with compensating cancellation, and the handoff to the
// payment provider. One Attempt exists per checkout screen; all of its
// mutable state is owned by that attempt and guarded by a single mutex.
package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/resolver"
)

const (
	// DefaultTTL is the reservation window: holds not paid within it are
	// released and the buyer restarts selection.
	DefaultTTL = 600 * time.Second

	tickInterval      = time.Second
	compensateTimeout = 10 * time.Second

	// terminalRetention keeps a finished attempt readable for a while so
	// status polls and late payment callbacks still find it, then evicts it
	// from the registry.
	terminalRetention = 5 * time.Minute
)

// BoxOffice is the slice of the backend the checkout flow drives.
type BoxOffice interface {
	Reserve(ctx context.Context, dateSessionID string, entries []domain.HoldEntry) (string, error)
	CancelHold(ctx context.Context, holdID string) error
	FetchActiveHold(ctx context.Context, buyerID string) (string, error)
	CreatePaymentOrder(ctx context.Context, holdID string, totals domain.Totals, callbackURL string) (domain.PaymentOrder, error)
}

// HoldMirror keeps the buyer's active hold ids in shared storage so a
// restarted process (or the sweeper) can still compensate them. The backend
// remains the source of truth.
type HoldMirror interface {
	MirrorHolds(ctx context.Context, buyerID string, holdIDs []string, ttl time.Duration) error
	ClearHolds(ctx context.Context, buyerID string) error
}

// Journal records attempt lifecycle for audit and event publishing. Journal
// failures never fail the checkout; they are logged and the flow proceeds.
type Journal interface {
	AttemptOpened(ctx context.Context, attemptID, buyerID string, expiresAt time.Time) error
	HoldCreated(ctx context.Context, attemptID string, hold domain.ReservationHold) error
	StateChanged(ctx context.Context, attemptID string, state string) error
	OrderCreated(ctx context.Context, attemptID string, order domain.PaymentOrder) error
}

// Orchestrator opens and tracks checkout attempts. Attempts are independent;
// the orchestrator only maps ids to attempts.
type Orchestrator struct {
	box     BoxOffice
	mirror  HoldMirror
	journal Journal
	logger  observability.Logger

	ttl       time.Duration
	tick      time.Duration
	retention time.Duration
	now       func() time.Time

	attempts syncAttempts
}

func NewOrchestrator(box BoxOffice, mirror HoldMirror, journal Journal, logger observability.Logger, ttl time.Duration) *Orchestrator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Orchestrator{
		box:       box,
		mirror:    mirror,
		journal:   journal,
		logger:    logger,
		ttl:       ttl,
		tick:      tickInterval,
		retention: terminalRetention,
		now:       time.Now,
	}
}

// Open creates an attempt for the given selections and starts its countdown.
// The clock starts here, when the buyer enters the checkout screen, not at
// confirm time.
func (o *Orchestrator) Open(ctx context.Context, buyer domain.BuyerContext, index *resolver.Index, selections []domain.SelectionEntry) (*Attempt, error) {
	if buyer.BuyerID == "" {
		return nil, domain.ErrInvalidInput
	}

	a := &Attempt{
		ID:         uuid.NewString(),
		Buyer:      buyer,
		svc:        o,
		index:      index,
		selections: selections,
		state:      StateIdle,
		expiresAt:  o.now().Add(o.ttl),
		done:       make(chan struct{}),
	}
	o.attempts.put(a)

	if err := o.journal.AttemptOpened(ctx, a.ID, buyer.BuyerID, a.expiresAt); err != nil {
		o.logger.WithField("attempt_id", a.ID).Warn("journal attempt open: ", err)
	}
	observability.AttemptsStarted.Inc()
	observability.ActiveAttempts.Inc()

	go a.runCountdown()
	return a, nil
}

func (o *Orchestrator) Get(id string) (*Attempt, bool) {
	return o.attempts.get(id)
}

func (o *Orchestrator) journalState(attemptID string, state State) {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()
	if err := o.journal.StateChanged(ctx, attemptID, state.String()); err != nil {
		o.logger.WithField("attempt_id", attemptID).Warn("journal state change: ", err)
	}
}
