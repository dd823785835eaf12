package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository holds the rich listing documents; the transactional
// availability row lives in postgres.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("listings"),
		logger: logger,
	}
}

type ListingDoc struct {
	ID          uuid.UUID `bson:"_id"`
	SellerID    string    `bson:"seller_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Price       float64   `bson:"price"`
	ImageURLs   []string  `bson:"image_urls"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (c *CatalogRepository) GetListing(ctx context.Context, id uuid.UUID) (*ListingDoc, error) {
	var listing ListingDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		c.logger.Error("failed to get listing", err)
		return nil, err
	}
	return &listing, nil
}

func (c *CatalogRepository) CreateListing(ctx context.Context, listing ListingDoc) error {
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, listing)
	if err != nil {
		c.logger.Error("failed to create listing", err)
		return err
	}
	return nil
}
