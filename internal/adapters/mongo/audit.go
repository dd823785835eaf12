package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/marketplace-checkout/internal/domain"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
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
	Actor     string    `bson:"actor"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, actor string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Actor:     actor,
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

func (a *AuditLogger) LogOrder(ctx context.Context, order domain.Order) error {
	data := map[string]interface{}{
		"order_id":    order.ID,
		"product_id":  order.ProductID,
		"price":       order.Price,
		"pickup_code": order.PickupCode,
	}
	return a.LogEvent(ctx, "order.created", order.Customer.Email, data)
}

func (a *AuditLogger) LogTransaction(ctx context.Context, txn domain.Transaction) error {
	data := map[string]interface{}{
		"transaction_id": txn.ID,
		"event_id":       txn.EventID,
		"seller_id":      txn.SellerID,
		"product_id":     txn.ProductID,
		"amount":         txn.Amount,
		"commission":     txn.CommissionAmount,
	}
	return a.LogEvent(ctx, "transaction.recorded", txn.BuyerID, data)
}
