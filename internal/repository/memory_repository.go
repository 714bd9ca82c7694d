package repository

import (
	"context"
	"fmt"
	"memory-service/internal/models"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MemoryRepository struct {
	collection *mongo.Collection
	mu         *sync.Mutex
}

func NewMemoryRepository(db *mongo.Database) *MemoryRepository {
	return &MemoryRepository{
		collection: db.Collection("memories"),
		mu:         &sync.Mutex{},
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, memory *models.Memory) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if memory.ID.IsZero() {
		memory.ID = bson.NewObjectID()
	}

	currentTime := time.Now().Unix()
	if memory.Metadata.CreatedAt == 0 {
		memory.Metadata.CreatedAt = currentTime
	}
	memory.Metadata.UpdatedAt = currentTime

	_, err := r.collection.InsertOne(ctx, memory)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}
	return memory, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Memory, error) {
	var memory models.Memory
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&memory)
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

// Update sets the mutable content fields and bumps the version atomically.
// Tracking arrays and the tombstone are never touched here; they have their
// own operations so concurrent publishes do not lose updates.
func (r *MemoryRepository) Update(ctx context.Context, id bson.ObjectID, memory *models.Memory) (*models.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter := bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}
	update := bson.M{
		"$set": bson.M{
			"title":              memory.Title,
			"content":            memory.Content,
			"summary":            memory.Summary,
			"memoryType":         memory.MemoryType,
			"tags":               memory.Tags,
			"references":         memory.References,
			"participants":       memory.Participants,
			"location":           memory.Location,
			"environment":        memory.Environment,
			"requiredTrust":      memory.RequiredTrust,
			"embedding":          memory.Embedding,
			"metadata.updatedAt": time.Now().Unix(),
		},
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Memory
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}

	return &updated, nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id bson.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentTime := time.Now().Unix()
	filter := bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}
	update := bson.M{
		"$set": bson.M{
			"isDeleted":          true,
			"deletedAt":          currentTime,
			"metadata.updatedAt": currentTime,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to soft delete memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func trackingField(kind models.SpaceKind) string {
	if kind == models.SpaceKindGroup {
		return "groupIds"
	}
	return "spaceIds"
}

func (r *MemoryRepository) AddDestination(ctx context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error {
	update := bson.M{
		"$addToSet": bson.M{trackingField(kind): destinationID},
		"$set":      bson.M{"metadata.updatedAt": time.Now().Unix()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to add destination to memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MemoryRepository) RemoveDestination(ctx context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error {
	update := bson.M{
		"$pull": bson.M{trackingField(kind): destinationID},
		"$set":  bson.M{"metadata.updatedAt": time.Now().Unix()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to remove destination from memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Search lists non-deleted memories. When maxTrust is set the trust-threshold
// predicate (requiredTrust <= maxTrust) is applied at the store so gated
// memories never leave the database.
func (r *MemoryRepository) Search(ctx context.Context, query *models.MemorySearchQuery, maxTrust *float64) ([]*models.Memory, int64, error) {
	filter := bson.M{"isDeleted": bson.M{"$ne": true}}

	if query.OwnerID != "" {
		filter["ownerId"] = query.OwnerID
	}

	if query.Query != "" {
		filter["$or"] = []bson.M{
			{"title": bson.M{"$regex": query.Query, "$options": "i"}},
			{"content": bson.M{"$regex": query.Query, "$options": "i"}},
			{"summary": bson.M{"$regex": query.Query, "$options": "i"}},
		}
	}

	if len(query.Tags) > 0 {
		filter["tags"] = bson.M{"$in": query.Tags}
	}

	if maxTrust != nil {
		filter["requiredTrust"] = bson.M{"$lte": *maxTrust}
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count memories: %w", err)
	}

	opts := options.Find()
	opts.SetSort(bson.M{"metadata.createdAt": -1})
	opts.SetSkip(int64((query.Page - 1) * query.PageSize))
	opts.SetLimit(int64(query.PageSize))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []*models.Memory
	if err = cursor.All(ctx, &memories); err != nil {
		return nil, 0, fmt.Errorf("failed to decode memories: %w", err)
	}

	return memories, totalCount, nil
}

// HasRelationship reports whether the owner keeps a live relationship memory
// that lists the participant. This is what makes an accessor a "friend" for
// trust resolution.
func (r *MemoryRepository) HasRelationship(ctx context.Context, ownerID, participantID string) (bool, error) {
	filter := bson.M{
		"ownerId":      ownerID,
		"kind":         models.MemoryKindRelationship,
		"participants": participantID,
		"isDeleted":    bson.M{"$ne": true},
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}
	return count > 0, nil
}

func (r *MemoryRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "isDeleted", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "kind", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "requiredTrust", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "tags", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.createdAt", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
