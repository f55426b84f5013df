package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	mongoadapter "github.com/robertarktes/checkout-orchestrator/internal/adapters/mongo"
	"github.com/robertarktes/checkout-orchestrator/internal/backend"
	"github.com/robertarktes/checkout-orchestrator/internal/checkout"
	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/idempotency"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/probe"
	"github.com/robertarktes/checkout-orchestrator/internal/reconcile"
	"github.com/robertarktes/checkout-orchestrator/internal/resolver"
)

type Handlers struct {
	flow    *checkout.Orchestrator
	catalog *mongoadapter.CatalogRepository
	box     *backend.Client
	prober  *probe.Prober
	idemp   *idempotency.Idempotency
	audit   *mongoadapter.AuditLogger
	logger  observability.Logger
}

func NewHandlers(flow *checkout.Orchestrator, catalog *mongoadapter.CatalogRepository, box *backend.Client, prober *probe.Prober, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger, logger observability.Logger) *Handlers {
	return &Handlers{
		flow:    flow,
		catalog: catalog,
		box:     box,
		prober:  prober,
		idemp:   idemp,
		audit:   audit,
		logger:  logger,
	}
}

type selectionPayload struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"`
}

// OpenCheckout creates an attempt and starts its countdown. The resolver
// indices are built from the offering catalog at this point, so every later
// resolve runs against a consistent snapshot.
func (h *Handlers) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID     string             `json:"buyer_id"`
		CallbackURL string             `json:"callback_url"`
		EventID     string             `json:"event_id"`
		Selections  []selectionPayload `json:"selections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offerings, err := h.catalog.ListOfferings(r.Context(), req.EventID)
	if err != nil {
		http.Error(w, "offering catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	selections := make([]domain.SelectionEntry, len(req.Selections))
	for i, s := range req.Selections {
		selections[i] = domain.SelectionEntry{Key: s.Key, Quantity: s.Quantity}
	}

	attempt, err := h.flow.Open(r.Context(), domain.BuyerContext{
		BuyerID:     req.BuyerID,
		CallbackURL: req.CallbackURL,
	}, resolver.NewIndex(offerings), selections)
	if errors.Is(err, domain.ErrInvalidInput) {
		http.Error(w, "buyer_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.audit.LogEvent(r.Context(), "checkout.opened", req.BuyerID, map[string]interface{}{
		"attempt_id": attempt.ID,
		"event_id":   req.EventID,
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"checkout_id":       attempt.ID,
		"remaining_seconds": attempt.RemainingSeconds(),
		"totals":            totalsPayload(attempt.AggregateTotals()),
	})
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.flow.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checkout_id":       attempt.ID,
		"state":             attempt.State().String(),
		"remaining_seconds": attempt.RemainingSeconds(),
		"totals":            totalsPayload(attempt.AggregateTotals()),
	})
}

// ConfirmCheckout drives reservation and payment handoff. Idempotency-key
// protected: a retry after a network blip replays the recorded response
// instead of reserving twice.
func (h *Handlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	attempt, ok := h.flow.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}

	order, err := attempt.ConfirmPurchase(r.Context())
	if err != nil {
		h.writeConfirmError(w, err)
		return
	}

	h.audit.LogOrder(r.Context(), attempt.Buyer.BuyerID, order)

	resp := map[string]interface{}{
		"order_id":     order.ID,
		"redirect_url": order.RedirectURL,
		"subtotal":     order.Subtotal,
		"service_fee":  order.ServiceFee,
		"total":        order.Total,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) writeConfirmError(w http.ResponseWriter, err error) {
	var resErr *domain.ReservationError
	var handoff *domain.PaymentHandoffError
	switch {
	case errors.Is(err, domain.ErrNoSelection):
		http.Error(w, "no resolvable selection", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrAttemptExpired):
		http.Error(w, "checkout expired, restart selection", http.StatusGone)
	case errors.Is(err, domain.ErrAttemptClosed), errors.Is(err, domain.ErrConflict):
		http.Error(w, "checkout already processed", http.StatusConflict)
	case errors.As(err, &resErr):
		http.Error(w, resErr.Error(), http.StatusConflict)
	case errors.As(err, &handoff):
		http.Error(w, handoff.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// CancelCheckout is the navigation-away gate. The response is written only
// after compensation has been attempted, so the caller can block its exit on
// it. confirm=false models the buyer declining the cancellation prompt.
func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.flow.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}

	confirmed := r.URL.Query().Get("confirm") != "false"
	cancelled, err := attempt.Cancel(r.Context(), confirmed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled": cancelled,
		"state":     attempt.State().String(),
	})
}

// PaymentCallback is the provider's redirect target; it resumes the flow
// after external payment.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CheckoutID string `json:"checkout_id"`
		OrderID    string `json:"order_id"`
		Status     string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	attempt, ok := h.flow.Get(req.CheckoutID)
	if !ok {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}

	if req.Status != "SUCCEEDED" {
		// Failed payment leaves the attempt holding; the countdown reclaims
		// the holds if the buyer does not retry.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := attempt.MarkPaid(r.Context(), req.OrderID); err != nil {
		http.Error(w, "order mismatch", http.StatusConflict)
		return
	}

	h.audit.LogEvent(r.Context(), "checkout.paid", attempt.Buyer.BuyerID, map[string]interface{}{
		"attempt_id": attempt.ID,
		"order_id":   req.OrderID,
	})
	w.WriteHeader(http.StatusOK)
}

type schedulePayload struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// PublishEvent runs the artist-admin publishing flow: submit the draft,
// reconcile the returned sessions against the local schedule order, then
// probe each session's inventory. Reconciliation gaps are hard failures;
// probe exhaustion is reported but not fatal.
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string            `json:"title"`
		Venue     string            `json:"venue"`
		Schedules []schedulePayload `json:"schedules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Schedules) == 0 {
		http.Error(w, "at least one schedule is required", http.StatusBadRequest)
		return
	}

	local := make([]domain.DraftSchedule, len(req.Schedules))
	for i, s := range req.Schedules {
		if !s.StartAt.Before(s.EndAt) {
			http.Error(w, "schedule start must precede end", http.StatusBadRequest)
			return
		}
		local[i] = domain.DraftSchedule{StartAt: s.StartAt, EndAt: s.EndAt}
	}

	remote, err := h.box.CreateDraftEvent(r.Context(), backend.DraftEventRequest{
		Title:     req.Title,
		Venue:     req.Venue,
		Schedules: local,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	ids := reconcile.Match(local, remote)
	for i, id := range ids {
		if id == "" {
			recErr := &domain.ReconciliationError{Index: i}
			http.Error(w, recErr.Error(), http.StatusConflict)
			return
		}
	}

	ready := make([]bool, len(ids))
	for i, id := range ids {
		ready[i] = h.prober.AwaitReady(r.Context(), id)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"date_session_ids": ids,
		"inventory_ready":  ready,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func totalsPayload(t domain.Totals) map[string]int64 {
	return map[string]int64{
		"subtotal":    t.Subtotal,
		"service_fee": t.ServiceFee,
		"total":       t.Total,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
