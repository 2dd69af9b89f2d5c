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

// Compile-time check to ensure TierRepository implements the interface
var _ repositories.TierRepository = (*TierRepository)(nil)

// TierRepository handles MongoDB operations for Tier
type TierRepository struct {
	collection *mongo.Collection
}

// NewTierRepository creates a new TierRepository
func NewTierRepository(db *mongo.Database) *TierRepository {
	return &TierRepository{
		collection: db.Collection("tiers"),
	}
}

// Create inserts a new tier
func (r *TierRepository) Create(ctx context.Context, tier *models.Tier) error {
	tier.ID = primitive.NewObjectID()
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = time.Now()
	}
	tier.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, tier)
	return err
}

// FindByID finds a tier by ID
func (r *TierRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Tier, error) {
	var tier models.Tier
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&tier)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// FindByLevel finds the active tier at a given hierarchy level
func (r *TierRepository) FindByLevel(ctx context.Context, level int) (*models.Tier, error) {
	var tier models.Tier
	err := r.collection.FindOne(ctx, bson.M{"hierarchyLevel": level, "isActive": true}).Decode(&tier)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// FindAll finds all active tiers sorted by hierarchy level ascending —
// the promotion ladder order
func (r *TierRepository) FindAll(ctx context.Context) ([]*models.Tier, error) {
	var tiers []*models.Tier
	findOptions := options.Find().SetSort(bson.D{{Key: "hierarchyLevel", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"isActive": true}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &tiers); err != nil {
		return nil, err
	}
	if tiers == nil {
		tiers = []*models.Tier{}
	}
	return tiers, nil
}

// Update updates a tier
func (r *TierRepository) Update(ctx context.Context, tier *models.Tier) error {
	tier.UpdatedAt = time.Now()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": tier.ID}, tier)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
