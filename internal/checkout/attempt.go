package checkout

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/resolver"
)

// Attempt is one buyer's checkout of one selection set. The countdown starts
// when the attempt is opened; every action is blocked once it expires.
type Attempt struct {
	ID    string
	Buyer domain.BuyerContext

	svc        *Orchestrator
	index      *resolver.Index
	selections []domain.SelectionEntry
	expiresAt  time.Time
	done       chan struct{}

	mu         sync.Mutex
	state      State
	confirming bool
	holds      []domain.ReservationHold
	order      *domain.PaymentOrder
}

// sessionAggregate is the reservation request for one date-session: the full
// ticket-type list submitted atomically in a single reserve call.
type sessionAggregate struct {
	DateSessionID string
	Entries       []domain.HoldEntry
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RemainingSeconds reports the countdown as whole seconds left until the
// stored expiry instant. It reads the wall clock every call; nothing
// accumulates deltas, so the value cannot drift.
func (a *Attempt) RemainingSeconds() int {
	remaining := a.expiresAt.Sub(a.svc.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// AggregateTotals resolves and aggregates the selection without side
// effects. Unresolvable keys contribute nothing.
func (a *Attempt) AggregateTotals() domain.Totals {
	_, subtotal := a.aggregate()
	if subtotal == 0 {
		return domain.Totals{}
	}
	return domain.TotalsFor(subtotal)
}

// ConfirmPurchase reserves every date-session in the aggregate and, on full
// success, creates the payment order and returns it with the provider's
// redirect URL. Any per-session failure compensates the sibling holds
// created in this call before the error is surfaced; no payment order exists
// unless every session was held.
func (a *Attempt) ConfirmPurchase(ctx context.Context) (domain.PaymentOrder, error) {
	a.mu.Lock()
	switch {
	case a.state == StateExpired:
		a.mu.Unlock()
		return domain.PaymentOrder{}, domain.ErrAttemptExpired
	case a.state.Terminal():
		a.mu.Unlock()
		return domain.PaymentOrder{}, domain.ErrAttemptClosed
	case a.state == StateHolding || a.confirming:
		a.mu.Unlock()
		return domain.PaymentOrder{}, domain.ErrConflict
	}
	a.confirming = true
	a.mu.Unlock()
	defer a.clearConfirming()

	if a.svc.now().After(a.expiresAt) {
		return domain.PaymentOrder{}, domain.ErrAttemptExpired
	}

	aggregates, subtotal := a.aggregate()
	if len(aggregates) == 0 {
		return domain.PaymentOrder{}, domain.ErrNoSelection
	}

	holds, err := a.reserveAll(ctx, aggregates)
	if err != nil {
		a.compensate(holds, "partial_failure")
		return domain.PaymentOrder{}, err
	}

	a.mu.Lock()
	if a.state.Terminal() {
		// Expired or cancelled while the reserve calls were in flight; the
		// fresh holds were never registered, release them.
		state := a.state
		a.mu.Unlock()
		a.compensate(holds, "late_reserve")
		if state == StateExpired {
			return domain.PaymentOrder{}, domain.ErrAttemptExpired
		}
		return domain.PaymentOrder{}, domain.ErrAttemptClosed
	}
	a.state = StateHolding
	a.holds = holds
	a.mu.Unlock()

	a.svc.journalState(a.ID, StateHolding)
	a.mirrorHolds(ctx, holds)
	for _, h := range holds {
		if err := a.svc.journal.HoldCreated(ctx, a.ID, h); err != nil {
			a.log().Warn("journal hold: ", err)
		}
	}

	// The last successfully created hold represents the order when several
	// exist. Arbitrary, but fixed and documented.
	canonical := holds[len(holds)-1].ID
	totals := domain.TotalsFor(subtotal)

	order, err := a.svc.box.CreatePaymentOrder(ctx, canonical, totals, a.Buyer.CallbackURL)
	if err != nil {
		a.mu.Lock()
		released := a.takeHoldsLocked()
		a.transitionLocked(StateCancelled)
		a.mu.Unlock()
		a.compensate(released, "handoff_failure")
		a.clearMirror()
		a.svc.journalState(a.ID, StateCancelled)
		return domain.PaymentOrder{}, err
	}

	a.mu.Lock()
	a.order = &order
	a.mu.Unlock()

	if err := a.svc.journal.OrderCreated(ctx, a.ID, order); err != nil {
		a.log().Warn("journal order: ", err)
	}
	return order, nil
}

// Cancel is the exit gate: the caller blocks until compensation has been
// attempted. A declined prompt (confirmed=false) leaves the attempt running.
// Cancelling with zero locally tracked holds falls back to backend
// discovery; finding nothing there is not an error.
func (a *Attempt) Cancel(ctx context.Context, confirmed bool) (bool, error) {
	if !confirmed {
		return false, nil
	}

	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return false, nil
	}
	released := a.takeHoldsLocked()
	a.transitionLocked(StateCancelled)
	a.mu.Unlock()

	if len(released) == 0 {
		holdID, err := a.svc.box.FetchActiveHold(ctx, a.Buyer.BuyerID)
		if err != nil {
			a.log().Warn("fetch active hold fallback: ", err)
		} else if holdID != "" {
			released = []domain.ReservationHold{{ID: holdID}}
		}
	}
	a.compensate(released, "exit")
	a.clearMirror()
	a.svc.journalState(a.ID, StateCancelled)
	return true, nil
}

// MarkPaid resumes the flow from the payment provider's callback. Holds are
// consumed by the backend at capture time, so nothing is cancelled here.
func (a *Attempt) MarkPaid(ctx context.Context, orderID string) error {
	a.mu.Lock()
	if a.state != StateHolding || a.order == nil || a.order.ID != orderID {
		a.mu.Unlock()
		return domain.ErrConflict
	}
	a.holds = nil
	a.transitionLocked(StatePaid)
	a.mu.Unlock()

	a.clearMirror()
	a.svc.journalState(a.ID, StatePaid)
	return nil
}

func (a *Attempt) runCountdown() {
	t := time.NewTicker(a.svc.tick)
	defer t.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-t.C:
			if !a.svc.now().Before(a.expiresAt) {
				a.expire()
				return
			}
		}
	}
}

func (a *Attempt) expire() {
	a.mu.Lock()
	if a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	released := a.takeHoldsLocked()
	a.transitionLocked(StateExpired)
	a.mu.Unlock()

	a.compensate(released, "expiry")
	a.clearMirror()
	a.svc.journalState(a.ID, StateExpired)
	a.log().Info("checkout attempt expired")
}

// aggregate resolves every selection key and groups quantities per
// date-session, type lists sorted for deterministic reserve payloads.
// Unresolvable keys are dropped and logged, never fatal.
func (a *Attempt) aggregate() ([]sessionAggregate, int64) {
	type lineKey struct{ session, typeCode string }
	quantities := make(map[lineKey]int)
	var subtotal int64

	for _, sel := range a.selections {
		if sel.Quantity <= 0 {
			continue
		}
		r, ok := a.index.Resolve(sel.Key)
		if !ok {
			a.log().WithField("selection_key", sel.Key).Warn("dropping unresolvable selection key")
			observability.SelectionKeysDropped.Inc()
			continue
		}
		quantities[lineKey{r.DateSessionID, r.TypeCode}] += sel.Quantity
		subtotal += int64(sel.Quantity) * r.UnitPrice
	}

	bySession := make(map[string][]domain.HoldEntry)
	for k, qty := range quantities {
		bySession[k.session] = append(bySession[k.session], domain.HoldEntry{TypeCode: k.typeCode, Quantity: qty})
	}

	sessions := make([]string, 0, len(bySession))
	for s := range bySession {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)

	aggregates := make([]sessionAggregate, 0, len(sessions))
	for _, s := range sessions {
		entries := bySession[s]
		sort.Slice(entries, func(i, j int) bool { return entries[i].TypeCode < entries[j].TypeCode })
		aggregates = append(aggregates, sessionAggregate{DateSessionID: s, Entries: entries})
	}
	return aggregates, subtotal
}

// reserveAll issues one reserve call per date-session, concurrently since
// the sessions are disjoint resources. On error the holds that did succeed
// are returned so the caller can compensate them.
func (a *Attempt) reserveAll(ctx context.Context, aggregates []sessionAggregate) ([]domain.ReservationHold, error) {
	results := make([]*domain.ReservationHold, len(aggregates))
	g, gctx := errgroup.WithContext(ctx)

	for i, agg := range aggregates {
		g.Go(func() error {
			started := time.Now()
			holdID, err := a.svc.box.Reserve(gctx, agg.DateSessionID, agg.Entries)
			observability.ReserveDuration.Observe(time.Since(started).Seconds())
			if err != nil {
				return err
			}
			results[i] = &domain.ReservationHold{
				ID:            holdID,
				DateSessionID: agg.DateSessionID,
				Entries:       agg.Entries,
				CreatedAt:     a.svc.now(),
				ExpiresAt:     a.expiresAt,
			}
			return nil
		})
	}
	err := g.Wait()

	holds := make([]domain.ReservationHold, 0, len(aggregates))
	for _, r := range results {
		if r != nil {
			holds = append(holds, *r)
		}
	}
	return holds, err
}

// compensate issues best-effort cancellations. Failures are logged, not
// retried; the backend's own TTL is the backstop.
func (a *Attempt) compensate(holds []domain.ReservationHold, trigger string) {
	if len(holds) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()

	for _, h := range holds {
		if err := a.svc.box.CancelHold(ctx, h.ID); err != nil {
			a.log().WithField("hold_id", h.ID).Error("compensating cancellation failed: ", err)
			continue
		}
		observability.HoldsCompensated.WithLabelValues(trigger).Inc()
	}
}

func (a *Attempt) mirrorHolds(ctx context.Context, holds []domain.ReservationHold) {
	ids := make([]string, len(holds))
	for i, h := range holds {
		ids[i] = h.ID
	}
	ttl := a.expiresAt.Sub(a.svc.now())
	if ttl <= 0 {
		return
	}
	if err := a.svc.mirror.MirrorHolds(ctx, a.Buyer.BuyerID, ids, ttl); err != nil {
		a.log().Warn("mirror holds: ", err)
	}
}

func (a *Attempt) clearMirror() {
	ctx, cancel := context.WithTimeout(context.Background(), compensateTimeout)
	defer cancel()
	if err := a.svc.mirror.ClearHolds(ctx, a.Buyer.BuyerID); err != nil {
		a.log().Warn("clear hold mirror: ", err)
	}
}

// takeHoldsLocked empties the active-holds set and returns the snapshot.
// Caller holds a.mu.
func (a *Attempt) takeHoldsLocked() []domain.ReservationHold {
	holds := a.holds
	a.holds = nil
	return holds
}

// transitionLocked moves to a terminal state, stops the countdown and
// schedules registry eviction after the retention window, so finished
// attempts stay readable for a while without accumulating forever.
// Caller holds a.mu.
func (a *Attempt) transitionLocked(s State) {
	a.state = s
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	time.AfterFunc(a.svc.retention, func() {
		a.svc.attempts.delete(a.ID)
	})
	observability.AttemptsFinished.WithLabelValues(s.String()).Inc()
	observability.ActiveAttempts.Dec()
}

func (a *Attempt) clearConfirming() {
	a.mu.Lock()
	a.confirming = false
	a.mu.Unlock()
}

func (a *Attempt) log() observability.Logger {
	return a.svc.logger.WithField("attempt_id", a.ID).WithField("buyer_id", a.Buyer.BuyerID)
}
