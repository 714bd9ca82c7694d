package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Enums and Constants
type EnforcementMode string

const (
	EnforcementModeQuery  EnforcementMode = "query"
	EnforcementModePrompt EnforcementMode = "prompt"
	EnforcementModeHybrid EnforcementMode = "hybrid"
)

const (
	DefaultFriendTrust = 0.25
	DefaultPublicTrust = 0.0
)

// Core Models
type OwnerTrustConfig struct {
	ID                 bson.ObjectID      `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID            string             `json:"ownerId" bson:"ownerId"`
	Enabled            bool               `json:"enabled" bson:"enabled"`
	PublicEnabled      bool               `json:"publicEnabled" bson:"publicEnabled"`
	DefaultFriendTrust float64            `json:"defaultFriendTrust" bson:"defaultFriendTrust"`
	DefaultPublicTrust float64            `json:"defaultPublicTrust" bson:"defaultPublicTrust"`
	PerUserTrust       map[string]float64 `json:"perUserTrust,omitempty" bson:"perUserTrust,omitempty"`
	BlockedUsers       []string           `json:"blockedUsers,omitempty" bson:"blockedUsers,omitempty"`
	EnforcementMode    EnforcementMode    `json:"enforcementMode" bson:"enforcementMode"`
	Metadata           Metadata           `json:"metadata" bson:"metadata"`
}

// NewOwnerTrustConfig returns a config with the documented defaults. Sharing
// stays disabled until the owner turns it on.
func NewOwnerTrustConfig(ownerID string) *OwnerTrustConfig {
	return &OwnerTrustConfig{
		OwnerID:            ownerID,
		Enabled:            false,
		PublicEnabled:      false,
		DefaultFriendTrust: DefaultFriendTrust,
		DefaultPublicTrust: DefaultPublicTrust,
		PerUserTrust:       map[string]float64{},
		BlockedUsers:       []string{},
		EnforcementMode:    EnforcementModeQuery,
	}
}

func (c *OwnerTrustConfig) HasBlocked(userID string) bool {
	for _, id := range c.BlockedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// DTOs and Requests
type UpdateTrustConfigRequest struct {
	Enabled            *bool            `json:"enabled"`
	PublicEnabled      *bool            `json:"publicEnabled"`
	DefaultFriendTrust *float64         `json:"defaultFriendTrust"`
	DefaultPublicTrust *float64         `json:"defaultPublicTrust"`
	EnforcementMode    *EnforcementMode `json:"enforcementMode"`
}

type SetUserTrustRequest struct {
	Trust float64 `json:"trust"`
}

type ClearEscalationRequest struct {
	AccessorID string `json:"accessorId"`
	MemoryID   string `json:"memoryId"`
}
