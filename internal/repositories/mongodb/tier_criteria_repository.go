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

// Compile-time check to ensure TierCriteriaRepository implements the interface
var _ repositories.TierCriteriaRepository = (*TierCriteriaRepository)(nil)

// TierCriteriaRepository handles MongoDB operations for TierEligibilityCriteria
type TierCriteriaRepository struct {
	collection *mongo.Collection
}

// NewTierCriteriaRepository creates a new TierCriteriaRepository
func NewTierCriteriaRepository(db *mongo.Database) *TierCriteriaRepository {
	return &TierCriteriaRepository{
		collection: db.Collection("tier_eligibility_criteria"),
	}
}

// Upsert creates or replaces the criteria record for (tier, app scope).
// The unique index on (tierId, appId) keeps at most one record per pair.
func (r *TierCriteriaRepository) Upsert(ctx context.Context, criteria *models.TierEligibilityCriteria) error {
	now := time.Now()
	criteria.UpdatedAt = now
	filter := bson.M{"tierId": criteria.TierID, "appId": criteria.AppID}
	update := bson.M{
		"$set": bson.M{
			"netEarningRequired":         criteria.NetEarningRequired,
			"evaluationPeriodDays":       criteria.EvaluationPeriodDays,
			"consecutivePeriodsRequired": criteria.ConsecutivePeriodsRequired,
			"requireConsecutive":         criteria.RequireConsecutive,
			"useCalendarMonths":          criteria.UseCalendarMonths,
			"isActive":                   criteria.IsActive,
			"updatedAt":                  now,
		},
		"$setOnInsert": bson.M{
			"tierId":    criteria.TierID,
			"appId":     criteria.AppID,
			"createdAt": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByTierAndApp finds the criteria for an exact (tier, app scope) pair.
// The general-record fallback is the caller's concern.
func (r *TierCriteriaRepository) FindByTierAndApp(ctx context.Context, tierID primitive.ObjectID, appID string) (*models.TierEligibilityCriteria, error) {
	var criteria models.TierEligibilityCriteria
	filter := bson.M{"tierId": tierID, "appId": appID, "isActive": true}
	err := r.collection.FindOne(ctx, filter).Decode(&criteria)
	if err != nil {
		return nil, err
	}
	return &criteria, nil
}

// FindByTier finds every criteria record configured for a tier
func (r *TierCriteriaRepository) FindByTier(ctx context.Context, tierID primitive.ObjectID) ([]*models.TierEligibilityCriteria, error) {
	var criteria []*models.TierEligibilityCriteria
	cursor, err := r.collection.Find(ctx, bson.M{"tierId": tierID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &criteria); err != nil {
		return nil, err
	}
	if criteria == nil {
		criteria = []*models.TierEligibilityCriteria{}
	}
	return criteria, nil
}
