package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
)

type LimitRepository interface {
	FindActive(ctx context.Context, accountType, txType string) (*models.TransactionLimit, error)
	List(ctx context.Context) ([]*models.TransactionLimit, error)
	Upsert(ctx context.Context, limit *models.TransactionLimit) error
	Delete(ctx context.Context, accountType, txType string) error
	EnsureIndexes(ctx context.Context) error
}

type limitRepository struct {
	collection *mongo.Collection
}

func NewLimitRepository(db *mongo.Database) LimitRepository {
	return &limitRepository{
		collection: db.Collection("transaction_limits"),
	}
}

// FindActive returns the active limit row for the pair, or nil when no limit
// is configured.
func (r *limitRepository) FindActive(ctx context.Context, accountType, txType string) (*models.TransactionLimit, error) {
	var limit models.TransactionLimit
	filter := bson.M{
		"account_type": accountType,
		"type":         txType,
		"active":       true,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&limit)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find limit: %w", err)
	}
	return &limit, nil
}

func (r *limitRepository) List(ctx context.Context) ([]*models.TransactionLimit, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list limits: %w", err)
	}
	defer cursor.Close(ctx)

	var limits []*models.TransactionLimit
	for cursor.Next(ctx) {
		var limit models.TransactionLimit
		if err := cursor.Decode(&limit); err != nil {
			continue
		}
		limits = append(limits, &limit)
	}

	return limits, cursor.Err()
}

func (r *limitRepository) Upsert(ctx context.Context, limit *models.TransactionLimit) error {
	limit.UpdatedAt = time.Now().UTC()

	filter := bson.M{
		"account_type": limit.AccountType,
		"type":         limit.Type,
	}
	update := bson.M{"$set": limit}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert limit: %w", err)
	}
	return nil
}

func (r *limitRepository) Delete(ctx context.Context, accountType, txType string) error {
	filter := bson.M{
		"account_type": accountType,
		"type":         txType,
	}
	if _, err := r.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete limit: %w", err)
	}
	return nil
}

func (r *limitRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_type", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create limit indexes: %w", err)
	}
	return nil
}
