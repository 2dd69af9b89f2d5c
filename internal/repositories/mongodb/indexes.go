package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the ledger relies on. The unique index
// on transactions.idempotencyKey is load-bearing: it is the sole mechanism
// preventing duplicate processing of a replayed request. Safe to call on
// every startup; Mongo treats existing identical indexes as a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("transactions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "idempotencyKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "customerId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "refTransactionId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("point_lots").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "customerId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "expiresAt", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expiresAt", Value: 1},
			},
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("tier_eligibility_criteria").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tierId", Value: 1},
			{Key: "appId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("tiers").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hierarchyLevel", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("admin_users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
