package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
)

// CatalogRepository is a read model of the backend's ticket offerings. The
// resolver's lookup indices are built from it at checkout open.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("offerings"),
		logger: logger,
	}
}

type OfferingDoc struct {
	ID            string    `bson:"_id"`
	EventID       string    `bson:"event_id"`
	DateSessionID string    `bson:"date_session_id"`
	TypeCode      string    `bson:"type_code"`
	UnitPrice     int64     `bson:"unit_price"`
	Label         string    `bson:"label"`
	Available     int       `bson:"available"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (c *CatalogRepository) ListOfferings(ctx context.Context, eventID string) ([]domain.TicketOffering, error) {
	cursor, err := c.coll.Find(ctx, bson.M{"event_id": eventID})
	if err != nil {
		c.logger.Error("failed to list offerings", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var offerings []domain.TicketOffering
	for cursor.Next(ctx) {
		var doc OfferingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		offerings = append(offerings, domain.TicketOffering{
			ID:            doc.ID,
			DateSessionID: doc.DateSessionID,
			TypeCode:      doc.TypeCode,
			UnitPrice:     doc.UnitPrice,
			Label:         doc.Label,
			Available:     doc.Available,
		})
	}
	return offerings, cursor.Err()
}

func (c *CatalogRepository) UpsertOffering(ctx context.Context, eventID string, o domain.TicketOffering) error {
	doc := OfferingDoc{
		ID:            o.ID,
		EventID:       eventID,
		DateSessionID: o.DateSessionID,
		TypeCode:      o.TypeCode,
		UnitPrice:     o.UnitPrice,
		Label:         o.Label,
		Available:     o.Available,
		UpdatedAt:     time.Now(),
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": o.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert offering", err)
	}
	return err
}
