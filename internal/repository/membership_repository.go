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

// MembershipRepository backs the credentials fetcher used by group-mode ACL
// checks on published copies.
type MembershipRepository struct {
	collection *mongo.Collection
}

func NewMembershipRepository(db *mongo.Database) *MembershipRepository {
	return &MembershipRepository{
		collection: db.Collection("group_memberships"),
	}
}

func (r *MembershipRepository) Upsert(ctx context.Context, membership *models.GroupMembership) (*models.GroupMembership, error) {
	currentTime := time.Now().Unix()

	filter := bson.M{
		"userId":  membership.UserID,
		"groupId": membership.GroupID,
	}
	update := bson.M{
		"$set": bson.M{
			"role":               membership.Role,
			"permissions":        membership.Permissions,
			"metadata.updatedAt": currentTime,
		},
		"$setOnInsert": bson.M{
			"userId":             membership.UserID,
			"groupId":            membership.GroupID,
			"metadata.createdAt": currentTime,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.GroupMembership
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert group membership: %w", err)
	}
	return &saved, nil
}

func (r *MembershipRepository) Remove(ctx context.Context, userID, groupID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"userId": userID, "groupId": groupID})
	if err != nil {
		return fmt.Errorf("failed to remove group membership: %w", err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MembershipRepository) FetchCredentials(ctx context.Context, userID string) ([]models.GroupCredential, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group credentials: %w", err)
	}
	defer cursor.Close(ctx)

	var memberships []*models.GroupMembership
	if err = cursor.All(ctx, &memberships); err != nil {
		return nil, fmt.Errorf("failed to decode group memberships: %w", err)
	}

	credentials := make([]models.GroupCredential, 0, len(memberships))
	for _, m := range memberships {
		credentials = append(credentials, models.GroupCredential{
			GroupID:     m.GroupID,
			Permissions: m.Permissions,
		})
	}
	return credentials, nil
}

func (r *MembershipRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "groupId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
