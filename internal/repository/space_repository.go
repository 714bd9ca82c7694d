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

type SpaceRepository struct {
	collection *mongo.Collection
}

func NewSpaceRepository(db *mongo.Database) *SpaceRepository {
	return &SpaceRepository{
		collection: db.Collection("spaces"),
	}
}

func (r *SpaceRepository) Upsert(ctx context.Context, space *models.Space) (*models.Space, error) {
	currentTime := time.Now().Unix()

	filter := bson.M{"spaceId": space.SpaceID}
	update := bson.M{
		"$set": bson.M{
			"kind":               space.Kind,
			"name":               space.Name,
			"public":             space.Public,
			"requireModeration":  space.RequireModeration,
			"defaultWriteMode":   space.DefaultWriteMode,
			"moderatorIds":       space.ModeratorIDs,
			"metadata.updatedAt": currentTime,
		},
		"$setOnInsert": bson.M{
			"spaceId":            space.SpaceID,
			"metadata.createdAt": currentTime,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.Space
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert space: %w", err)
	}
	return &saved, nil
}

func (r *SpaceRepository) FindBySpaceID(ctx context.Context, spaceID string) (*models.Space, error) {
	var space models.Space
	err := r.collection.FindOne(ctx, bson.M{"spaceId": spaceID}).Decode(&space)
	if err != nil {
		return nil, err
	}
	return &space, nil
}

func (r *SpaceRepository) FindBySpaceIDs(ctx context.Context, spaceIDs []string) ([]*models.Space, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"spaceId": bson.M{"$in": spaceIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find spaces: %w", err)
	}
	defer cursor.Close(ctx)

	var spaces []*models.Space
	if err = cursor.All(ctx, &spaces); err != nil {
		return nil, fmt.Errorf("failed to decode spaces: %w", err)
	}
	return spaces, nil
}

func (r *SpaceRepository) ListPublic(ctx context.Context) ([]*models.Space, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"public": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list public spaces: %w", err)
	}
	defer cursor.Close(ctx)

	var spaces []*models.Space
	if err = cursor.All(ctx, &spaces); err != nil {
		return nil, fmt.Errorf("failed to decode public spaces: %w", err)
	}
	return spaces, nil
}

func (r *SpaceRepository) ListModeratedBy(ctx context.Context, userID string) ([]*models.Space, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"moderatorIds": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list moderated spaces: %w", err)
	}
	defer cursor.Close(ctx)

	var spaces []*models.Space
	if err = cursor.All(ctx, &spaces); err != nil {
		return nil, fmt.Errorf("failed to decode moderated spaces: %w", err)
	}
	return spaces, nil
}

func (r *SpaceRepository) Delete(ctx context.Context, spaceID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"spaceId": spaceID})
	if err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *SpaceRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "spaceId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "public", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "moderatorIds", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
