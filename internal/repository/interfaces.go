// Package repository holds the persistence layer: small capability
// interfaces, their MongoDB implementations, the Redis-backed confirmation
// token store, and in-memory implementations used in tests and when the
// backing store is unavailable.
//
// Mongo-backed stores return mongo.ErrNoDocuments when a lookup matches
// nothing; the token store returns (nil, nil) instead since absence is an
// expected outcome of its consume-once contract.
package repository

import (
	"context"
	"memory-service/internal/models"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type MemoryStore interface {
	Insert(ctx context.Context, memory *models.Memory) (*models.Memory, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Memory, error)
	Update(ctx context.Context, id bson.ObjectID, memory *models.Memory) (*models.Memory, error)
	SoftDelete(ctx context.Context, id bson.ObjectID) error
	AddDestination(ctx context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error
	RemoveDestination(ctx context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error
	Search(ctx context.Context, query *models.MemorySearchQuery, maxTrust *float64) ([]*models.Memory, int64, error)
	HasRelationship(ctx context.Context, ownerID, participantID string) (bool, error)
}

type TrustConfigStore interface {
	Get(ctx context.Context, ownerID string) (*models.OwnerTrustConfig, error)
	GetOrCreate(ctx context.Context, ownerID string) (*models.OwnerTrustConfig, error)
	Update(ctx context.Context, ownerID string, config *models.OwnerTrustConfig) (*models.OwnerTrustConfig, error)
	SetUserTrust(ctx context.Context, ownerID, userID string, trust float64) error
	RemoveUserTrust(ctx context.Context, ownerID, userID string) error
	AddBlockedUser(ctx context.Context, ownerID, userID string) error
	RemoveBlockedUser(ctx context.Context, ownerID, userID string) error
}

type EscalationStore interface {
	IncrementAttempts(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error)
	GetAttempts(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error)
	ResetAttempts(ctx context.Context, ownerID, accessorID, memoryID string) error
	GetBlock(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessBlock, error)
	SetBlock(ctx context.Context, block *models.AccessBlock) error
	RemoveBlock(ctx context.Context, ownerID, accessorID, memoryID string) error
	ListBlocksByOwner(ctx context.Context, ownerID string) ([]*models.AccessBlock, error)
}

// TokenStore persists confirmation tokens. Consume must be atomic: under a
// concurrent confirm and deny of the same token exactly one caller receives
// the record, the other receives nil.
type TokenStore interface {
	Save(ctx context.Context, token *models.ConfirmationToken, ttl time.Duration) error
	Get(ctx context.Context, tokenID string) (*models.ConfirmationToken, error)
	Consume(ctx context.Context, tokenID string) (*models.ConfirmationToken, error)
}

type PublicationStore interface {
	Upsert(ctx context.Context, pub *models.PublishedMemory) (*models.PublishedMemory, error)
	FindByCompositeID(ctx context.Context, destinationID, compositeID string) (*models.PublishedMemory, error)
	FindBySourceAndDestination(ctx context.Context, sourceMemoryID, destinationID string) (*models.PublishedMemory, error)
	FindBySource(ctx context.Context, sourceMemoryID string) ([]*models.PublishedMemory, error)
	FindByDestination(ctx context.Context, destinationID string) ([]*models.PublishedMemory, error)
	SoftDelete(ctx context.Context, destinationID, compositeID string) error
	UpdateModeration(ctx context.Context, destinationID, compositeID string, status models.ModerationStatus, moderatedBy string) error
	Search(ctx context.Context, query *models.PublicationSearchQuery, destinationIDs []string) ([]*models.PublishedMemory, int64, error)
	ListPending(ctx context.Context, destinationIDs []string, page, pageSize int) ([]*models.PublishedMemory, int64, error)
	PendingCounts(ctx context.Context, destinationIDs []string) (map[string]int64, error)
}

type SpaceStore interface {
	Upsert(ctx context.Context, space *models.Space) (*models.Space, error)
	FindBySpaceID(ctx context.Context, spaceID string) (*models.Space, error)
	FindBySpaceIDs(ctx context.Context, spaceIDs []string) ([]*models.Space, error)
	ListPublic(ctx context.Context) ([]*models.Space, error)
	ListModeratedBy(ctx context.Context, userID string) ([]*models.Space, error)
	Delete(ctx context.Context, spaceID string) error
}

// CredentialsFetcher resolves a user's group memberships for ACL checks on
// published copies.
type CredentialsFetcher interface {
	FetchCredentials(ctx context.Context, userID string) ([]models.GroupCredential, error)
}
