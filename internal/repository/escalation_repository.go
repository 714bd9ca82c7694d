package repository

import (
	"context"
	"fmt"
	"memory-service/internal/models"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EscalationRepository tracks per-(owner, accessor, memory) access attempts
// and blocks. Attempt increments go through a single FindOneAndUpdate with
// $inc and upsert so concurrent failed attempts are never under-counted.
type EscalationRepository struct {
	attempts *mongo.Collection
	blocks   *mongo.Collection
}

func NewEscalationRepository(db *mongo.Database) *EscalationRepository {
	return &EscalationRepository{
		attempts: db.Collection("access_attempts"),
		blocks:   db.Collection("access_blocks"),
	}
}

func tripleFilter(ownerID, accessorID, memoryID string) bson.M {
	return bson.M{
		"ownerId":    ownerID,
		"accessorId": accessorID,
		"memoryId":   memoryID,
	}
}

func (r *EscalationRepository) IncrementAttempts(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error) {
	filter := tripleFilter(ownerID, accessorID, memoryID)
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"lastAttemptAt": time.Now().Unix()},
		"$setOnInsert": bson.M{
			"ownerId":    ownerID,
			"accessorId": accessorID,
			"memoryId":   memoryID,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var attempt models.AccessAttempt
	err := r.attempts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to increment access attempts: %w", err)
	}
	return &attempt, nil
}

func (r *EscalationRepository) GetAttempts(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error) {
	var attempt models.AccessAttempt
	err := r.attempts.FindOne(ctx, tripleFilter(ownerID, accessorID, memoryID)).Decode(&attempt)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *EscalationRepository) ResetAttempts(ctx context.Context, ownerID, accessorID, memoryID string) error {
	_, err := r.attempts.DeleteOne(ctx, tripleFilter(ownerID, accessorID, memoryID))
	if err != nil {
		return fmt.Errorf("failed to reset access attempts: %w", err)
	}
	return nil
}

func (r *EscalationRepository) GetBlock(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessBlock, error) {
	var block models.AccessBlock
	err := r.blocks.FindOne(ctx, tripleFilter(ownerID, accessorID, memoryID)).Decode(&block)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *EscalationRepository) SetBlock(ctx context.Context, block *models.AccessBlock) error {
	filter := tripleFilter(block.OwnerID, block.AccessorID, block.MemoryID)
	update := bson.M{
		"$set": bson.M{
			"reason":       block.Reason,
			"attemptCount": block.AttemptCount,
			"blockedAt":    block.BlockedAt,
		},
		"$setOnInsert": bson.M{
			"ownerId":    block.OwnerID,
			"accessorId": block.AccessorID,
			"memoryId":   block.MemoryID,
		},
	}

	_, err := r.blocks.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set access block: %w", err)
	}
	return nil
}

func (r *EscalationRepository) RemoveBlock(ctx context.Context, ownerID, accessorID, memoryID string) error {
	result, err := r.blocks.DeleteOne(ctx, tripleFilter(ownerID, accessorID, memoryID))
	if err != nil {
		return fmt.Errorf("failed to remove access block: %w", err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *EscalationRepository) ListBlocksByOwner(ctx context.Context, ownerID string) ([]*models.AccessBlock, error) {
	opts := options.Find().SetSort(bson.M{"blockedAt": -1})

	cursor, err := r.blocks.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list access blocks: %w", err)
	}
	defer cursor.Close(ctx)

	var blocks []*models.AccessBlock
	if err = cursor.All(ctx, &blocks); err != nil {
		return nil, fmt.Errorf("failed to decode access blocks: %w", err)
	}

	return blocks, nil
}

func (r *EscalationRepository) CreateIndexes(ctx context.Context) error {
	tripleKeys := bson.D{
		{Key: "ownerId", Value: 1},
		{Key: "accessorId", Value: 1},
		{Key: "memoryId", Value: 1},
	}

	_, err := r.attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    tripleKeys,
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create attempt indexes: %w", err)
	}

	_, err = r.blocks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    tripleKeys,
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "blockedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create block indexes: %w", err)
	}

	return nil
}
