package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Catalog reads authoritative unit prices from the products collection. It
// satisfies orders.PriceBook.
type Catalog struct {
	coll *mongo.Collection
}

func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{coll: db.Collection(ProductsCollection)}
}

type productPrice struct {
	Price float64 `bson:"price"`
}

func (c *Catalog) UnitPrice(ctx context.Context, productID string) (float64, bool, error) {
	var p productPrice
	err := c.coll.FindOne(ctx, productFilter(productID),
		options.FindOne().SetProjection(bson.M{"price": 1})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find product: %w", err)
	}
	return p.Price, true, nil
}

// productFilter accepts both ObjectID hex ids and plain string ids.
func productFilter(productID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(productID); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": productID}
}
