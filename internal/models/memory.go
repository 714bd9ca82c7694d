package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Enums and Constants
type MemoryKind string

const (
	MemoryKindMemory       MemoryKind = "memory"
	MemoryKindRelationship MemoryKind = "relationship"
)

// DefaultRequiredTrust keeps new memories owner-exclusive until the owner
// lowers the threshold deliberately.
const DefaultRequiredTrust = 1.0

// Core Models
type Memory struct {
	ID            bson.ObjectID     `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID       string            `json:"ownerId" bson:"ownerId"`
	Kind          MemoryKind        `json:"kind" bson:"kind"`
	Title         string            `json:"title" bson:"title"`
	Content       string            `json:"content,omitempty" bson:"content,omitempty"`
	Summary       string            `json:"summary,omitempty" bson:"summary,omitempty"`
	MemoryType    string            `json:"memoryType,omitempty" bson:"memoryType,omitempty"`
	Tags          []string          `json:"tags,omitempty" bson:"tags,omitempty"`
	References    []string          `json:"references,omitempty" bson:"references,omitempty"`
	Participants  []string          `json:"participants,omitempty" bson:"participants,omitempty"`
	Location      *GeoPoint         `json:"location,omitempty" bson:"location,omitempty"`
	Environment   map[string]string `json:"environment,omitempty" bson:"environment,omitempty"`
	RequiredTrust float64           `json:"requiredTrust" bson:"requiredTrust"`
	Embedding     []float64         `json:"-" bson:"embedding,omitempty"`
	SpaceIDs      []string          `json:"spaceIds,omitempty" bson:"spaceIds,omitempty"`
	GroupIDs      []string          `json:"groupIds,omitempty" bson:"groupIds,omitempty"`
	Version       int               `json:"version" bson:"version"`
	IsDeleted     bool              `json:"isDeleted" bson:"isDeleted"`
	DeletedAt     int64             `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	Metadata      Metadata          `json:"metadata" bson:"metadata"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Label     string  `json:"label,omitempty" bson:"label,omitempty"`
}

type Metadata struct {
	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}

// IsPublishedTo reports whether the memory's tracking arrays already
// contain the destination.
func (m *Memory) IsPublishedTo(destinationID string) bool {
	for _, id := range m.SpaceIDs {
		if id == destinationID {
			return true
		}
	}
	for _, id := range m.GroupIDs {
		if id == destinationID {
			return true
		}
	}
	return false
}

// PublishedDestinations returns the union of both tracking arrays.
func (m *Memory) PublishedDestinations() []string {
	out := make([]string, 0, len(m.SpaceIDs)+len(m.GroupIDs))
	out = append(out, m.SpaceIDs...)
	out = append(out, m.GroupIDs...)
	return out
}

// DTOs and Requests
type CreateMemoryRequest struct {
	Kind          MemoryKind        `json:"kind"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Summary       string            `json:"summary"`
	MemoryType    string            `json:"memoryType"`
	Tags          []string          `json:"tags"`
	References    []string          `json:"references"`
	Participants  []string          `json:"participants"`
	Location      *GeoPoint         `json:"location"`
	Environment   map[string]string `json:"environment"`
	RequiredTrust *float64          `json:"requiredTrust"`
	Embedding     []float64         `json:"embedding"`
}

type UpdateMemoryRequest struct {
	Title         *string           `json:"title"`
	Content       *string           `json:"content"`
	Summary       *string           `json:"summary"`
	MemoryType    *string           `json:"memoryType"`
	Tags          []string          `json:"tags"`
	References    []string          `json:"references"`
	Participants  []string          `json:"participants"`
	Location      *GeoPoint         `json:"location"`
	Environment   map[string]string `json:"environment"`
	RequiredTrust *float64          `json:"requiredTrust"`
	Embedding     []float64         `json:"embedding"`
}

type MemorySearchQuery struct {
	Query     string    `json:"query"`
	OwnerID   string    `json:"ownerId"`
	Tags      []string  `json:"tags"`
	Embedding []float64 `json:"embedding"`
	Page      int       `json:"page"`
	PageSize  int       `json:"pageSize"`
}

// Search Results
type MemorySearchResult struct {
	Results     []*Disclosure `json:"results"`
	TotalCount  int64         `json:"totalCount"`
	PageCount   int           `json:"pageCount"`
	CurrentPage int           `json:"currentPage"`
}
