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

// Compile-time check to ensure TransactionRepository implements the interface
var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// TransactionRepository handles MongoDB operations for Transaction.
// The collection carries a unique index on idempotencyKey (see EnsureIndexes);
// duplicate submissions surface as a driver duplicate-key error on Create.
type TransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *mongo.Database) *TransactionRepository {
	return &TransactionRepository{
		collection: db.Collection("transactions"),
	}
}

// Create inserts a new transaction record
func (r *TransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	transaction.ID = primitive.NewObjectID()
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now()
	}
	transaction.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, transaction)
	return err
}

// FindByID finds a transaction by ID
func (r *TransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// FindByIdempotencyKey finds a transaction by its idempotency key
func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// FindByCustomer finds transactions for a customer, newest first, paginated
func (r *TransactionRepository) FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	findOptions := options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"customerId": customerID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &transactions); err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []*models.Transaction{}
	}
	return transactions, nil
}

// FindCompletedInRange finds completed transactions for a customer created
// in [from, to), oldest first
func (r *TransactionRepository) FindCompletedInRange(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	filter := bson.M{
		"customerId": customerID,
		"status":     models.TransactionStatusCompleted,
		"createdAt":  bson.M{"$gte": from, "$lt": to},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &transactions); err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []*models.Transaction{}
	}
	return transactions, nil
}

// FindByRefTransaction finds the transaction referencing a prior one
func (r *TransactionRepository) FindByRefTransaction(ctx context.Context, refID primitive.ObjectID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"refTransactionId": refID}).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// UpdateStatus transitions a transaction to a new status
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) error {
	update := bson.M{
		"$set": bson.M{"status": status, "updatedAt": time.Now()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Update replaces a transaction record
func (r *TransactionRepository) Update(ctx context.Context, transaction *models.Transaction) error {
	transaction.UpdatedAt = time.Now()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": transaction.ID}, transaction)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
