// Package crdb journals checkout attempt lifecycle and stages lifecycle
// events in a transactional outbox. The journal is observational: checkout
// never blocks on it, but downstream consumers (notifications, analytics)
// read a consistent record of what happened to every attempt.
package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// AttemptOpened journals a new attempt and stages the opened event in the
// same transaction.
func (r *Repository) AttemptOpened(ctx context.Context, attemptID, buyerID string, expiresAt time.Time) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO checkout_attempts (id, buyer_id, state, expires_at)
			VALUES ($1, $2, 'IDLE', $3)
		`, attemptID, buyerID, expiresAt)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"attempt_id": attemptID,
			"buyer_id":   buyerID,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "checkout",
			AggregateID:   attemptID,
			EventType:     "checkout.opened",
			Payload:       payload,
			DedupeKey:     attemptID + ":opened",
		})
	})
}

func (r *Repository) HoldCreated(ctx context.Context, attemptID string, hold domain.ReservationHold) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		entries, _ := json.Marshal(hold.Entries)
		_, err := tx.Exec(ctx, `
			INSERT INTO attempt_holds (hold_id, attempt_id, date_session_id, entries_json, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (hold_id) DO NOTHING
		`, hold.ID, attemptID, hold.DateSessionID, entries, hold.CreatedAt, hold.ExpiresAt)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"attempt_id":      attemptID,
			"hold_id":         hold.ID,
			"date_session_id": hold.DateSessionID,
			"expires_at":      hold.ExpiresAt.Format(time.RFC3339),
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "hold",
			AggregateID:   hold.ID,
			EventType:     "hold.created",
			Payload:       payload,
			DedupeKey:     hold.ID + ":created",
		})
	})
}

func (r *Repository) StateChanged(ctx context.Context, attemptID string, state string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE checkout_attempts SET state = $2 WHERE id = $1
		`, attemptID, state)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"attempt_id": attemptID,
			"state":      state,
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "checkout",
			AggregateID:   attemptID,
			EventType:     "checkout.state_changed",
			Payload:       payload,
			DedupeKey:     attemptID + ":" + state,
		})
	})
}

func (r *Repository) OrderCreated(ctx context.Context, attemptID string, order domain.PaymentOrder) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_orders (id, attempt_id, hold_id, subtotal, service_fee, total)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, attemptID, order.HoldID, order.Subtotal, order.ServiceFee, order.Total)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"attempt_id":  attemptID,
			"order_id":    order.ID,
			"hold_id":     order.HoldID,
			"subtotal":    order.Subtotal,
			"service_fee": order.ServiceFee,
			"total":       order.Total,
		})
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
			Payload:       payload,
			DedupeKey:     order.ID + ":created",
		})
	})
}

// GetAttemptState reads back the journaled state, used by readiness probes
// in tests and the sweeper's sanity checks.
func (r *Repository) GetAttemptState(ctx context.Context, attemptID string) (string, error) {
	var state string
	err := r.pool.QueryRow(ctx, `
		SELECT state FROM checkout_attempts WHERE id = $1
	`, attemptID).Scan(&state)
	if err == pgx.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return state, nil
}
