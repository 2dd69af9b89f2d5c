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

// Compile-time check to ensure ExpirationRulesRepository implements the interface
var _ repositories.ExpirationRulesRepository = (*ExpirationRulesRepository)(nil)

// ExpirationRulesRepository handles MongoDB operations for PointsExpirationRules
type ExpirationRulesRepository struct {
	collection *mongo.Collection
}

// NewExpirationRulesRepository creates a new ExpirationRulesRepository
func NewExpirationRulesRepository(db *mongo.Database) *ExpirationRulesRepository {
	return &ExpirationRulesRepository{
		collection: db.Collection("points_expiration_rules"),
	}
}

// Create inserts a new rules record and deactivates any previously active
// one, so exactly one record stays active. Run inside a unit of work when
// the supersede must be atomic with the insert.
func (r *ExpirationRulesRepository) Create(ctx context.Context, rules *models.PointsExpirationRules) error {
	now := time.Now()
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": now}},
	)
	if err != nil {
		return err
	}

	rules.ID = primitive.NewObjectID()
	rules.IsActive = true
	rules.CreatedAt = now
	rules.UpdatedAt = now
	_, err = r.collection.InsertOne(ctx, rules)
	return err
}

// FindActive finds the single active rules record, preferring the newest
// should more than one ever be active
func (r *ExpirationRulesRepository) FindActive(ctx context.Context) (*models.PointsExpirationRules, error) {
	var rules models.PointsExpirationRules
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	err := r.collection.FindOne(ctx, bson.M{"isActive": true}, opts).Decode(&rules)
	if err != nil {
		return nil, err
	}
	return &rules, nil
}
