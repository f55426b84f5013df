// Package backend is the HTTP client for the upstream box-office API: the
// authority for inventory, holds, payment orders and event publishing. The
// orchestrator never mutates inventory except through these calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
)

const requestTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	logger  observability.Logger
}

func NewClient(baseURL string, logger observability.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

type holdEntryPayload struct {
	TypeCode string `json:"type_code"`
	Quantity int    `json:"quantity"`
}

// Reserve places one time-boxed hold covering every ticket-type line for the
// session in a single request; the backend enforces availability per request,
// not per line. A rejection is returned as *domain.ReservationError carrying
// the backend's message when one was given.
func (c *Client) Reserve(ctx context.Context, dateSessionID string, entries []domain.HoldEntry) (string, error) {
	payload := make([]holdEntryPayload, len(entries))
	for i, e := range entries {
		payload[i] = holdEntryPayload{TypeCode: e.TypeCode, Quantity: e.Quantity}
	}

	var resp struct {
		HoldID    string    `json:"hold_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	err := c.doJSON(ctx, http.MethodPost,
		"/v1/sessions/"+url.PathEscape(dateSessionID)+"/holds",
		map[string]interface{}{"entries": payload}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return "", &domain.ReservationError{DateSessionID: dateSessionID, Message: apiErr.Message, Err: err}
		}
		return "", &domain.ReservationError{DateSessionID: dateSessionID, Err: err}
	}
	if resp.HoldID == "" {
		return "", &domain.ReservationError{DateSessionID: dateSessionID, Message: "backend returned no hold id"}
	}
	return resp.HoldID, nil
}

// CancelHold releases a hold. Cancelling a hold the backend already expired
// or released is not an error.
func (c *Client) CancelHold(ctx context.Context, holdID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/v1/holds/"+url.PathEscape(holdID), nil, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusGone) {
		return nil
	}
	return err
}

// FetchActiveHold is the fallback discovery path when local hold tracking is
// gone, e.g. after a restart. Returns "" when the buyer holds nothing.
func (c *Client) FetchActiveHold(ctx context.Context, buyerID string) (string, error) {
	var resp struct {
		HoldID string `json:"hold_id"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/buyers/"+url.PathEscape(buyerID)+"/active-hold", nil, &resp)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return resp.HoldID, nil
}

func (c *Client) ProbeInventoryExists(ctx context.Context, dateSessionID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(dateSessionID)+"/inventory", nil, &resp)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// CreatePaymentOrder asks the payment provider (via the backend) for an order
// and its redirect target. An empty redirect URL is a handoff failure.
func (c *Client) CreatePaymentOrder(ctx context.Context, holdID string, totals domain.Totals, callbackURL string) (domain.PaymentOrder, error) {
	var resp struct {
		OrderID     string `json:"order_id"`
		RedirectURL string `json:"redirect_url"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/payment-orders", map[string]interface{}{
		"hold_id":      holdID,
		"subtotal":     totals.Subtotal,
		"service_fee":  totals.ServiceFee,
		"callback_url": callbackURL,
	}, &resp)
	if err != nil {
		return domain.PaymentOrder{}, &domain.PaymentHandoffError{Err: err}
	}
	if resp.RedirectURL == "" {
		return domain.PaymentOrder{}, &domain.PaymentHandoffError{}
	}
	return domain.PaymentOrder{
		ID:          resp.OrderID,
		HoldID:      holdID,
		Subtotal:    totals.Subtotal,
		ServiceFee:  totals.ServiceFee,
		Total:       totals.Total,
		RedirectURL: resp.RedirectURL,
	}, nil
}

type DraftEventRequest struct {
	Title     string                 `json:"title"`
	Venue     string                 `json:"venue"`
	Schedules []domain.DraftSchedule `json:"-"`
}

// CreateDraftEvent submits a drafted event and returns the backend-assigned
// sessions, in whatever order and shape the backend chose to return them.
func (c *Client) CreateDraftEvent(ctx context.Context, req DraftEventRequest) ([]domain.RemoteSession, error) {
	type schedulePayload struct {
		StartAt time.Time `json:"start_at"`
		EndAt   time.Time `json:"end_at"`
	}
	schedules := make([]schedulePayload, len(req.Schedules))
	for i, s := range req.Schedules {
		schedules[i] = schedulePayload{StartAt: s.StartAt, EndAt: s.EndAt}
	}

	var resp struct {
		Sessions []struct {
			ID      string    `json:"id"`
			StartAt time.Time `json:"start_at"`
			EndAt   time.Time `json:"end_at"`
		} `json:"sessions"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/events/draft", map[string]interface{}{
		"title":     req.Title,
		"venue":     req.Venue,
		"schedules": schedules,
	}, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "create draft event")
	}

	sessions := make([]domain.RemoteSession, len(resp.Sessions))
	for i, s := range resp.Sessions {
		sessions[i] = domain.RemoteSession{ID: s.ID, StartAt: s.StartAt, EndAt: s.EndAt}
	}
	return sessions, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &apiError{Status: resp.StatusCode, Message: errBody.Message}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
