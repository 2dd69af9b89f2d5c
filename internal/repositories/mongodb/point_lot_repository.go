package mongodb

import (
	"context"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure PointLotRepository implements the interface
var _ repositories.PointLotRepository = (*PointLotRepository)(nil)

// PointLotRepository handles MongoDB operations for PointLot
type PointLotRepository struct {
	collection *mongo.Collection
}

// NewPointLotRepository creates a new PointLotRepository
func NewPointLotRepository(db *mongo.Database) *PointLotRepository {
	return &PointLotRepository{
		collection: db.Collection("point_lots"),
	}
}

// Create inserts a new point lot
func (r *PointLotRepository) Create(ctx context.Context, lot *models.PointLot) error {
	lot.ID = primitive.NewObjectID()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now()
	}
	lot.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, lot)
	return err
}

// FindByID finds a point lot by ID
func (r *PointLotRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PointLot, error) {
	var lot models.PointLot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&lot)
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// FindActiveByCustomer finds all active, unexpired lots for a customer,
// sorted by expiry ascending and creation order for ties. This ordering is
// the redemption consumption order and must not change.
func (r *PointLotRepository) FindActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) ([]*models.PointLot, error) {
	var lots []*models.PointLot
	filter := bson.M{
		"customerId": customerID,
		"status":     models.LotStatusActive,
		"expiresAt":  bson.M{"$gte": asOf},
	}
	findOptions := options.Find().SetSort(bson.D{
		{Key: "expiresAt", Value: 1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &lots); err != nil {
		return nil, err
	}
	if lots == nil {
		lots = []*models.PointLot{}
	}
	return lots, nil
}

// SumActiveByCustomer sums the remaining amounts of active, unexpired lots
func (r *PointLotRepository) SumActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) (int64, error) {
	match := bson.M{
		"customerId": customerID,
		"status":     models.LotStatusActive,
		"expiresAt":  bson.M{"$gte": asOf},
	}
	return r.sumAmounts(ctx, match)
}

// SumExpiringBetween sums active lot amounts with expiry in [from, to)
func (r *PointLotRepository) SumExpiringBetween(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) (int64, error) {
	match := bson.M{
		"customerId": customerID,
		"status":     models.LotStatusActive,
		"expiresAt":  bson.M{"$gte": from, "$lt": to},
	}
	return r.sumAmounts(ctx, match)
}

func (r *PointLotRepository) sumAmounts(ctx context.Context, match bson.M) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// FindExpired finds active lots whose expiry has passed, oldest expiry first
func (r *PointLotRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*models.PointLot, error) {
	var lots []*models.PointLot
	filter := bson.M{
		"status":    models.LotStatusActive,
		"expiresAt": bson.M{"$lt": asOf},
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "expiresAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &lots); err != nil {
		return nil, err
	}
	if lots == nil {
		lots = []*models.PointLot{}
	}
	return lots, nil
}

// Update updates a point lot
func (r *PointLotRepository) Update(ctx context.Context, lot *models.PointLot) error {
	lot.UpdatedAt = time.Now()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": lot.ID}, lot)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
