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

type TrustConfigRepository struct {
	collection *mongo.Collection
	mu         *sync.Mutex
}

func NewTrustConfigRepository(db *mongo.Database) *TrustConfigRepository {
	return &TrustConfigRepository{
		collection: db.Collection("trust_configs"),
		mu:         &sync.Mutex{},
	}
}

func (r *TrustConfigRepository) Get(ctx context.Context, ownerID string) (*models.OwnerTrustConfig, error) {
	var config models.OwnerTrustConfig
	err := r.collection.FindOne(ctx, bson.M{"ownerId": ownerID}).Decode(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// GetOrCreate lazily materializes the owner's config with the documented
// defaults. The upsert keeps concurrent first reads from inserting twice.
func (r *TrustConfigRepository) GetOrCreate(ctx context.Context, ownerID string) (*models.OwnerTrustConfig, error) {
	defaults := models.NewOwnerTrustConfig(ownerID)
	currentTime := time.Now().Unix()

	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"ownerId":            ownerID,
			"enabled":            defaults.Enabled,
			"publicEnabled":      defaults.PublicEnabled,
			"defaultFriendTrust": defaults.DefaultFriendTrust,
			"defaultPublicTrust": defaults.DefaultPublicTrust,
			"perUserTrust":       defaults.PerUserTrust,
			"blockedUsers":       defaults.BlockedUsers,
			"enforcementMode":    defaults.EnforcementMode,
			"metadata":           models.Metadata{CreatedAt: currentTime, UpdatedAt: currentTime},
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var config models.OwnerTrustConfig
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create trust config: %w", err)
	}
	return &config, nil
}

func (r *TrustConfigRepository) Update(ctx context.Context, ownerID string, config *models.OwnerTrustConfig) (*models.OwnerTrustConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$set": bson.M{
			"enabled":            config.Enabled,
			"publicEnabled":      config.PublicEnabled,
			"defaultFriendTrust": config.DefaultFriendTrust,
			"defaultPublicTrust": config.DefaultPublicTrust,
			"enforcementMode":    config.EnforcementMode,
			"metadata.updatedAt": time.Now().Unix(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.OwnerTrustConfig
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update trust config: %w", err)
	}
	return &updated, nil
}

func (r *TrustConfigRepository) SetUserTrust(ctx context.Context, ownerID, userID string, trust float64) error {
	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$set": bson.M{
			"perUserTrust." + userID: trust,
			"metadata.updatedAt":     time.Now().Unix(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set user trust: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TrustConfigRepository) RemoveUserTrust(ctx context.Context, ownerID, userID string) error {
	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$unset": bson.M{"perUserTrust." + userID: ""},
		"$set":   bson.M{"metadata.updatedAt": time.Now().Unix()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove user trust: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TrustConfigRepository) AddBlockedUser(ctx context.Context, ownerID, userID string) error {
	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$addToSet": bson.M{"blockedUsers": userID},
		"$set":      bson.M{"metadata.updatedAt": time.Now().Unix()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add blocked user: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TrustConfigRepository) RemoveBlockedUser(ctx context.Context, ownerID, userID string) error {
	filter := bson.M{"ownerId": ownerID}
	update := bson.M{
		"$pull": bson.M{"blockedUsers": userID},
		"$set":  bson.M{"metadata.updatedAt": time.Now().Unix()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove blocked user: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TrustConfigRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
