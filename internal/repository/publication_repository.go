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

type PublicationRepository struct {
	collection *mongo.Collection
	mu         *sync.Mutex
}

func NewPublicationRepository(db *mongo.Database) *PublicationRepository {
	return &PublicationRepository{
		collection: db.Collection("published_memories"),
		mu:         &sync.Mutex{},
	}
}

func copyFilter(destinationID, compositeID string) bson.M {
	return bson.M{
		"destinationId": destinationID,
		"compositeId":   compositeID,
	}
}

// Upsert writes a published copy keyed by (destinationId, compositeId).
// Publishing over a retracted copy revives it with the new content.
func (r *PublicationRepository) Upsert(ctx context.Context, pub *models.PublishedMemory) (*models.PublishedMemory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentTime := time.Now().Unix()

	filter := copyFilter(pub.DestinationID, pub.CompositeID)
	update := bson.M{
		"$set": bson.M{
			"sourceMemoryId":     pub.SourceMemoryID,
			"title":              pub.Title,
			"content":            pub.Content,
			"summary":            pub.Summary,
			"memoryType":         pub.MemoryType,
			"tags":               pub.Tags,
			"acl":                pub.ACL,
			"isDeleted":          false,
			"deletedAt":          int64(0),
			"metadata.updatedAt": currentTime,
		},
		"$inc": bson.M{"version": 1},
		"$setOnInsert": bson.M{
			"destinationId":      pub.DestinationID,
			"compositeId":        pub.CompositeID,
			"metadata.createdAt": currentTime,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.PublishedMemory
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert published memory: %w", err)
	}
	return &saved, nil
}

func (r *PublicationRepository) FindByCompositeID(ctx context.Context, destinationID, compositeID string) (*models.PublishedMemory, error) {
	var pub models.PublishedMemory
	err := r.collection.FindOne(ctx, copyFilter(destinationID, compositeID)).Decode(&pub)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *PublicationRepository) FindBySourceAndDestination(ctx context.Context, sourceMemoryID, destinationID string) (*models.PublishedMemory, error) {
	filter := bson.M{
		"sourceMemoryId": sourceMemoryID,
		"destinationId":  destinationID,
	}

	var pub models.PublishedMemory
	err := r.collection.FindOne(ctx, filter).Decode(&pub)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *PublicationRepository) FindBySource(ctx context.Context, sourceMemoryID string) ([]*models.PublishedMemory, error) {
	filter := bson.M{
		"sourceMemoryId": sourceMemoryID,
		"isDeleted":      bson.M{"$ne": true},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find published copies: %w", err)
	}
	defer cursor.Close(ctx)

	var pubs []*models.PublishedMemory
	if err = cursor.All(ctx, &pubs); err != nil {
		return nil, fmt.Errorf("failed to decode published copies: %w", err)
	}
	return pubs, nil
}

func (r *PublicationRepository) FindByDestination(ctx context.Context, destinationID string) ([]*models.PublishedMemory, error) {
	filter := bson.M{
		"destinationId": destinationID,
		"isDeleted":     bson.M{"$ne": true},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find destination copies: %w", err)
	}
	defer cursor.Close(ctx)

	var pubs []*models.PublishedMemory
	if err = cursor.All(ctx, &pubs); err != nil {
		return nil, fmt.Errorf("failed to decode destination copies: %w", err)
	}
	return pubs, nil
}

func (r *PublicationRepository) SoftDelete(ctx context.Context, destinationID, compositeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentTime := time.Now().Unix()
	filter := copyFilter(destinationID, compositeID)
	filter["isDeleted"] = bson.M{"$ne": true}

	update := bson.M{
		"$set": bson.M{
			"isDeleted":          true,
			"deletedAt":          currentTime,
			"metadata.updatedAt": currentTime,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to soft delete published memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *PublicationRepository) UpdateModeration(ctx context.Context, destinationID, compositeID string, status models.ModerationStatus, moderatedBy string) error {
	currentTime := time.Now().Unix()

	filter := copyFilter(destinationID, compositeID)
	filter["isDeleted"] = bson.M{"$ne": true}

	update := bson.M{
		"$set": bson.M{
			"acl.moderationStatus": status,
			"acl.moderatedBy":      moderatedBy,
			"acl.moderatedAt":      currentTime,
			"metadata.updatedAt":   currentTime,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update moderation status: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Search lists published copies across the given destinations. When
// destinationIDs is nil the destination filter is taken from the query alone;
// an empty non-nil slice matches nothing (no public destinations exist).
func (r *PublicationRepository) Search(ctx context.Context, query *models.PublicationSearchQuery, destinationIDs []string) ([]*models.PublishedMemory, int64, error) {
	filter := bson.M{"isDeleted": bson.M{"$ne": true}}

	if destinationIDs != nil {
		filter["destinationId"] = bson.M{"$in": destinationIDs}
	} else if query.DestinationID != "" {
		filter["destinationId"] = query.DestinationID
	}

	if query.AuthorID != "" {
		filter["acl.authorId"] = query.AuthorID
	}

	status := query.Status
	if status == "" {
		status = models.ModerationApproved
	}
	filter["acl.moderationStatus"] = status

	if query.Query != "" {
		filter["$or"] = []bson.M{
			{"title": bson.M{"$regex": query.Query, "$options": "i"}},
			{"content": bson.M{"$regex": query.Query, "$options": "i"}},
			{"summary": bson.M{"$regex": query.Query, "$options": "i"}},
		}
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count published memories: %w", err)
	}

	opts := options.Find()
	opts.SetSort(bson.M{"metadata.createdAt": -1})
	opts.SetSkip(int64((query.Page - 1) * query.PageSize))
	opts.SetLimit(int64(query.PageSize))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search published memories: %w", err)
	}
	defer cursor.Close(ctx)

	var pubs []*models.PublishedMemory
	if err = cursor.All(ctx, &pubs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode published memories: %w", err)
	}

	return pubs, totalCount, nil
}

func (r *PublicationRepository) ListPending(ctx context.Context, destinationIDs []string, page, pageSize int) ([]*models.PublishedMemory, int64, error) {
	filter := bson.M{
		"destinationId":        bson.M{"$in": destinationIDs},
		"acl.moderationStatus": models.ModerationPending,
		"isDeleted":            bson.M{"$ne": true},
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count pending memories: %w", err)
	}

	opts := options.Find()
	opts.SetSort(bson.M{"metadata.createdAt": 1})
	opts.SetSkip(int64((page - 1) * pageSize))
	opts.SetLimit(int64(pageSize))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending memories: %w", err)
	}
	defer cursor.Close(ctx)

	var pubs []*models.PublishedMemory
	if err = cursor.All(ctx, &pubs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode pending memories: %w", err)
	}

	return pubs, totalCount, nil
}

// PendingCounts aggregates the moderation backlog per destination.
func (r *PublicationRepository) PendingCounts(ctx context.Context, destinationIDs []string) (map[string]int64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{
			"destinationId":        bson.M{"$in": destinationIDs},
			"acl.moderationStatus": models.ModerationPending,
			"isDeleted":            bson.M{"$ne": true},
		}},
		{"$group": bson.M{
			"_id":   "$destinationId",
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pending counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		DestinationID string `bson:"_id"`
		Count         int64  `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode pending counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.DestinationID] = row.Count
	}
	return counts, nil
}

func (r *PublicationRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "destinationId", Value: 1}, {Key: "compositeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "sourceMemoryId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "destinationId", Value: 1}, {Key: "acl.moderationStatus", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "acl.authorId", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
