package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

type TransactionRepository interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	Update(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, transactionID string) (*models.Transaction, error)
	FindByIdempotency(ctx context.Context, createdBy, txType, key string) (*models.Transaction, error)
	FindReversals(ctx context.Context, originalID string) ([]*models.Transaction, error)
	AggregateUsage(ctx context.Context, accountID, txType string, window models.UsageWindow) (decimal.Decimal, int64, error)
	Page(ctx context.Context, filter *models.TransactionFilter, page models.PageSpec) (*models.Page, error)
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error)
	ClaimReversal(ctx context.Context, original *models.Transaction, reversal *models.Transaction) error
	ClearReversalPointer(ctx context.Context, originalID, reversalID string) error
	MarkReversed(ctx context.Context, originalID, reversalID string) error
	EnsureIndexes(ctx context.Context) error
}

type transactionRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
}

func NewTransactionRepository(db *mongo.Database) TransactionRepository {
	return &transactionRepository{
		collection: db.Collection("transactions"),
		db:         db,
	}
}

func (r *transactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt

	result, err := r.collection.InsertOne(ctx, tx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicateIdempotency
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	tx.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *transactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now().UTC()

	filter := bson.M{"transaction_id": tx.TransactionID}
	update := bson.M{"$set": bson.M{
		"status":           tx.Status,
		"processing_state": tx.ProcessingState,
		"failure_reason":   tx.FailureReason,
		"processed_at":     tx.ProcessedAt,
		"updated_at":       tx.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrTransactionNotFound
	}

	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&tx)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindByIdempotency(ctx context.Context, createdBy, txType, key string) (*models.Transaction, error) {
	var tx models.Transaction
	filter := bson.M{
		"created_by":      createdBy,
		"type":            txType,
		"idempotency_key": key,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&tx)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // not found is not an error on the idempotency fast path
		}
		return nil, fmt.Errorf("failed to find transaction by idempotency key: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindReversals(ctx context.Context, originalID string) ([]*models.Transaction, error) {
	filter := bson.M{
		"type":                    models.TypeReversal,
		"original_transaction_id": originalID,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find reversals of %s: %w", originalID, err)
	}
	defer cursor.Close(ctx)

	var reversals []*models.Transaction
	for cursor.Next(ctx) {
		var tx models.Transaction
		if err := cursor.Decode(&tx); err != nil {
			continue
		}
		reversals = append(reversals, &tx)
	}

	return reversals, cursor.Err()
}

// AggregateUsage returns the completed sum and count charged against an
// account for one transaction type inside the given window.
func (r *transactionRepository) AggregateUsage(ctx context.Context, accountID, txType string, window models.UsageWindow) (decimal.Decimal, int64, error) {
	pipeline := []bson.M{
		{"$match": usageMatch(accountID, txType, window.Start(time.Now()))},
		{
			"$group": bson.M{
				"_id":   nil,
				"sum":   bson.M{"$sum": "$amount"},
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Sum   decimal.Decimal `bson:"sum"`
		Count int64           `bson:"count"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return decimal.Zero, 0, fmt.Errorf("failed to decode usage aggregate: %w", err)
		}
	}

	return result.Sum, result.Count, cursor.Err()
}

// usageMatch scopes the aggregation to the side a limit charges: outgoing
// types count against from_account, incoming types against to_account. An
// incoming transfer must not consume the recipient's outgoing allowance.
func usageMatch(accountID, txType string, since time.Time) bson.M {
	field := "from_account"
	switch txType {
	case models.TypeDeposit, models.TypeInterest, models.TypeRefund:
		field = "to_account"
	}
	return bson.M{
		"type":       txType,
		"status":     models.StatusCompleted,
		field:        accountID,
		"created_at": bson.M{"$gte": since},
	}
}

func (r *transactionRepository) Page(ctx context.Context, filter *models.TransactionFilter, page models.PageSpec) (*models.Page, error) {
	page = page.Normalize()
	query := buildFilter(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	opts := options.Find().
		SetLimit(int64(page.Limit)).
		SetSkip(int64(page.Offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to page transactions: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*models.Transaction, 0, page.Limit)
	for cursor.Next(ctx) {
		var tx models.Transaction
		if err := cursor.Decode(&tx); err != nil {
			continue
		}
		items = append(items, &tx)
	}

	return &models.Page{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, cursor.Err()
}

func buildFilter(f *models.TransactionFilter) bson.M {
	query := bson.M{}
	if f == nil {
		return query
	}

	if f.AccountID != "" {
		query["$or"] = []bson.M{
			{"from_account": f.AccountID},
			{"to_account": f.AccountID},
		}
	}
	if f.Type != "" {
		query["type"] = f.Type
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.StartDate != nil || f.EndDate != nil {
		created := bson.M{}
		if f.StartDate != nil {
			created["$gte"] = *f.StartDate
		}
		if f.EndDate != nil {
			created["$lte"] = *f.EndDate
		}
		query["created_at"] = created
	}
	if f.MinAmount != nil || f.MaxAmount != nil {
		amount := bson.M{}
		if f.MinAmount != nil {
			amount["$gte"] = *f.MinAmount
		}
		if f.MaxAmount != nil {
			amount["$lte"] = *f.MaxAmount
		}
		query["amount"] = amount
	}
	if f.Description != "" {
		query["description"] = bson.M{"$regex": f.Description, "$options": "i"}
	}
	if f.Reference != "" {
		query["reference"] = f.Reference
	}

	return query
}

func (r *transactionRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	filter := bson.M{
		"status": bson.M{"$in": []string{models.StatusPending, models.StatusProcessing}},
		"processing_state": bson.M{"$in": []string{
			models.StateInitiated,
			models.StateDebitApplied,
			models.StateCreditApplied,
		}},
		"updated_at": bson.M{"$lt": olderThan},
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"updated_at": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var stale []*models.Transaction
	for cursor.Next(ctx) {
		var tx models.Transaction
		if err := cursor.Decode(&tx); err != nil {
			continue
		}
		stale = append(stale, &tx)
	}

	return stale, cursor.Err()
}

// ClaimReversal atomically stamps the original with the reversal pointer and
// inserts the reversal row, inside one session transaction. The conditional
// update serializes concurrent reversal attempts; the partial unique index on
// original_transaction_id is the last line of defense.
func (r *transactionRepository) ClaimReversal(ctx context.Context, original *models.Transaction, reversal *models.Transaction) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := bson.M{
			"transaction_id":          original.TransactionID,
			"status":                  models.StatusCompleted,
			"reversal_transaction_id": bson.M{"$exists": false},
		}
		update := bson.M{"$set": bson.M{
			"reversal_transaction_id": reversal.TransactionID,
			"updated_at":              time.Now().UTC(),
		}}

		result, err := r.collection.UpdateOne(sc, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to claim original for reversal: %w", err)
		}
		if result.MatchedCount == 0 {
			return nil, apperrors.ErrAlreadyReversed
		}

		reversal.CreatedAt = time.Now().UTC()
		reversal.UpdatedAt = reversal.CreatedAt
		if _, err := r.collection.InsertOne(sc, reversal); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, apperrors.ErrAlreadyReversed
			}
			return nil, fmt.Errorf("failed to insert reversal: %w", err)
		}

		return nil, nil
	})

	return err
}

// ClearReversalPointer unstamps the original after its reversal failed, so a
// later reversal attempt is admitted again.
func (r *transactionRepository) ClearReversalPointer(ctx context.Context, originalID, reversalID string) error {
	filter := bson.M{
		"transaction_id":          originalID,
		"reversal_transaction_id": reversalID,
		"status":                  models.StatusCompleted,
	}
	update := bson.M{
		"$unset": bson.M{"reversal_transaction_id": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to clear reversal pointer: %w", err)
	}
	return nil
}

func (r *transactionRepository) MarkReversed(ctx context.Context, originalID, reversalID string) error {
	filter := bson.M{
		"transaction_id":          originalID,
		"reversal_transaction_id": reversalID,
	}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusReversed,
		"updated_at": time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrTransactionNotFound
	}

	return nil
}

// EnsureIndexes creates the uniqueness constraints the orchestration relies
// on: the idempotency triple and the single-successful-reversal guard.
func (r *transactionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "created_by", Value: 1},
				{Key: "type", Value: 1},
				{Key: "idempotency_key", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"idempotency_key": bson.M{"$exists": true},
			}),
		},
		{
			Keys: bson.D{{Key: "original_transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"type": models.TypeReversal,
				"status": bson.M{"$nin": []string{
					models.StatusFailed,
					models.StatusFailedManualAction,
				}},
			}),
		},
		{
			Keys: bson.D{{Key: "from_account", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "to_account", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "processing_state", Value: 1}, {Key: "updated_at", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}
