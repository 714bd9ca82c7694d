package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Enums and Constants
type WriteMode string

const (
	WriteModeOwnerOnly    WriteMode = "owner_only"
	WriteModeGroupEditors WriteMode = "group_editors"
	WriteModeAnyone       WriteMode = "anyone"
)

type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

type ModerationAction string

const (
	ModerationActionApprove ModerationAction = "approve"
	ModerationActionReject  ModerationAction = "reject"
)

type SpaceKind string

const (
	SpaceKindSpace SpaceKind = "space"
	SpaceKindGroup SpaceKind = "group"
)

// Core Models

// PublishedACL controls who may touch a published copy. OwnerID overrides
// AuthorID for permission purposes when set (ownership transfer). An unset
// WriteMode is equivalent to owner_only.
type PublishedACL struct {
	AuthorID            string           `json:"authorId" bson:"authorId"`
	OwnerID             string           `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	WriteMode           WriteMode        `json:"writeMode,omitempty" bson:"writeMode,omitempty"`
	GroupIDs            []string         `json:"groupIds,omitempty" bson:"groupIds,omitempty"`
	OverwriteAllowedIDs []string         `json:"overwriteAllowedIds,omitempty" bson:"overwriteAllowedIds,omitempty"`
	ModerationStatus    ModerationStatus `json:"moderationStatus" bson:"moderationStatus"`
	ModeratedBy         string           `json:"moderatedBy,omitempty" bson:"moderatedBy,omitempty"`
	ModeratedAt         int64            `json:"moderatedAt,omitempty" bson:"moderatedAt,omitempty"`
}

func (a PublishedACL) EffectiveOwner() string {
	if a.OwnerID != "" {
		return a.OwnerID
	}
	return a.AuthorID
}

func (a PublishedACL) EffectiveWriteMode() WriteMode {
	if a.WriteMode == "" {
		return WriteModeOwnerOnly
	}
	return a.WriteMode
}

func (a PublishedACL) AllowsOverwriteFor(userID string) bool {
	for _, id := range a.OverwriteAllowedIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type PublishedMemory struct {
	ID             bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	CompositeID    string        `json:"compositeId" bson:"compositeId"`
	DestinationID  string        `json:"destinationId" bson:"destinationId"`
	SourceMemoryID string        `json:"sourceMemoryId" bson:"sourceMemoryId"`
	Title          string        `json:"title" bson:"title"`
	Content        string        `json:"content,omitempty" bson:"content,omitempty"`
	Summary        string        `json:"summary,omitempty" bson:"summary,omitempty"`
	MemoryType     string        `json:"memoryType,omitempty" bson:"memoryType,omitempty"`
	Tags           []string      `json:"tags,omitempty" bson:"tags,omitempty"`
	ACL            PublishedACL  `json:"acl" bson:"acl"`
	Version        int           `json:"version" bson:"version"`
	IsDeleted      bool          `json:"isDeleted" bson:"isDeleted"`
	DeletedAt      int64         `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	Metadata       Metadata      `json:"metadata" bson:"metadata"`
}

type Space struct {
	ID                bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	SpaceID           string        `json:"spaceId" bson:"spaceId"`
	Kind              SpaceKind     `json:"kind" bson:"kind"`
	Name              string        `json:"name" bson:"name"`
	Public            bool          `json:"public" bson:"public"`
	RequireModeration bool          `json:"requireModeration" bson:"requireModeration"`
	DefaultWriteMode  WriteMode     `json:"defaultWriteMode,omitempty" bson:"defaultWriteMode,omitempty"`
	ModeratorIDs      []string      `json:"moderatorIds,omitempty" bson:"moderatorIds,omitempty"`
	Metadata          Metadata      `json:"metadata" bson:"metadata"`
}

func (s *Space) WriteModeOrDefault() WriteMode {
	if s.DefaultWriteMode == "" {
		return WriteModeOwnerOnly
	}
	return s.DefaultWriteMode
}

func (s *Space) HasModerator(userID string) bool {
	for _, id := range s.ModeratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type GroupPermissions struct {
	CanRevise    bool `json:"canRevise" bson:"canRevise"`
	CanOverwrite bool `json:"canOverwrite" bson:"canOverwrite"`
}

type GroupMembership struct {
	ID          bson.ObjectID    `json:"id,omitempty" bson:"_id,omitempty"`
	UserID      string           `json:"userId" bson:"userId"`
	GroupID     string           `json:"groupId" bson:"groupId"`
	Role        string           `json:"role,omitempty" bson:"role,omitempty"`
	Permissions GroupPermissions `json:"permissions" bson:"permissions"`
	Metadata    Metadata         `json:"metadata" bson:"metadata"`
}

// GroupCredential is the per-group slice of a user's credentials as seen by
// ACL checks.
type GroupCredential struct {
	GroupID     string           `json:"groupId"`
	Permissions GroupPermissions `json:"permissions"`
}

// DTOs and Requests
type PublishRequest struct {
	MemoryID     string   `json:"memoryId"`
	Destinations []string `json:"destinations"`
}

type RetractRequest struct {
	MemoryID     string   `json:"memoryId"`
	Destinations []string `json:"destinations"`
}

type ReviseRequest struct {
	MemoryID string `json:"memoryId"`
}

type ConfirmRequest struct {
	Token string `json:"token"`
}

type ModerateRequest struct {
	MemoryID      string           `json:"memoryId"`
	DestinationID string           `json:"destinationId"`
	Action        ModerationAction `json:"action"`
}

type TokenResponse struct {
	Token     string      `json:"token"`
	Action    TokenAction `json:"action"`
	ExpiresAt int64       `json:"expiresAt"`
}

// PublishReport is the result of confirming a deferred action. Destination
// writes are applied one by one, so failures are reported per destination
// instead of pretending the whole batch committed.
type PublishReport struct {
	Action      TokenAction        `json:"action"`
	MemoryID    string             `json:"memoryId"`
	CompositeID string             `json:"compositeId,omitempty"`
	Succeeded   []string           `json:"succeeded"`
	Failed      []DestinationError `json:"failed,omitempty"`
}

type DestinationError struct {
	DestinationID string `json:"destinationId"`
	Error         string `json:"error"`
}

type PublicationSearchQuery struct {
	Query         string           `json:"query" form:"q"`
	DestinationID string           `json:"destinationId" form:"destination"`
	AuthorID      string           `json:"authorId" form:"author"`
	Status        ModerationStatus `json:"status" form:"status"`
	Page          int              `json:"page" form:"page"`
	PageSize      int              `json:"pageSize" form:"pageSize"`
}

// Search Results
type PublicationSearchResult struct {
	Publications []*PublishedMemory `json:"publications"`
	TotalCount   int64              `json:"totalCount"`
	PageCount    int                `json:"pageCount"`
	CurrentPage  int                `json:"currentPage"`
}
