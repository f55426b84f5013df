package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	BuyerID   string    `bson:"buyer_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, buyerID string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		BuyerID:   buyerID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHold(ctx context.Context, buyerID string, hold domain.ReservationHold) error {
	data := map[string]interface{}{
		"hold_id":         hold.ID,
		"date_session_id": hold.DateSessionID,
		"entries":         hold.Entries,
		"expires_at":      hold.ExpiresAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, "hold.created", buyerID, data)
}

func (a *AuditLogger) LogOrder(ctx context.Context, buyerID string, order domain.PaymentOrder) error {
	data := map[string]interface{}{
		"order_id":    order.ID,
		"hold_id":     order.HoldID,
		"subtotal":    order.Subtotal,
		"service_fee": order.ServiceFee,
		"total":       order.Total,
	}
	return a.LogEvent(ctx, "order.created", buyerID, data)
}
