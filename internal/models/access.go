package models

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Enums and Constants
type AccessOutcome string

const (
	OutcomeGranted           AccessOutcome = "granted"
	OutcomeInsufficientTrust AccessOutcome = "insufficient_trust"
	OutcomeBlocked           AccessOutcome = "blocked"
	OutcomeNoPermission      AccessOutcome = "no_permission"
	OutcomeNotFound          AccessOutcome = "not_found"
	OutcomeDeleted           AccessOutcome = "deleted"
)

type AccessLevel string

const (
	AccessLevelOwner   AccessLevel = "owner"
	AccessLevelTrusted AccessLevel = "trusted"
)

type DisclosureLevel string

const (
	DisclosureFull      DisclosureLevel = "full"
	DisclosurePartial   DisclosureLevel = "partial"
	DisclosureSummary   DisclosureLevel = "summary_only"
	DisclosureMetadata  DisclosureLevel = "metadata_only"
	DisclosureExistence DisclosureLevel = "existence_only"
)

// AccessResult is the closed set of terminal outcomes of an access check.
// Blocked and InsufficientTrust are ordinary business outcomes, not errors.
type AccessResult interface {
	Outcome() AccessOutcome
}

type AccessGranted struct {
	AccessLevel AccessLevel `json:"accessLevel"`
	Trust       float64     `json:"trust"`
}

type AccessInsufficientTrust struct {
	RequiredTrust     float64 `json:"requiredTrust"`
	ActualTrust       float64 `json:"actualTrust"`
	AttemptsRemaining int     `json:"attemptsRemaining"`
}

type AccessBlocked struct {
	Reason    string `json:"reason"`
	BlockedAt int64  `json:"blockedAt"`
}

type AccessNoPermission struct {
	OwnerID    string `json:"ownerId"`
	AccessorID string `json:"accessorId"`
}

type AccessNotFound struct {
	MemoryID string `json:"memoryId"`
}

type AccessDeleted struct {
	MemoryID  string `json:"memoryId"`
	DeletedAt int64  `json:"deletedAt"`
}

func (AccessGranted) Outcome() AccessOutcome           { return OutcomeGranted }
func (AccessInsufficientTrust) Outcome() AccessOutcome { return OutcomeInsufficientTrust }
func (AccessBlocked) Outcome() AccessOutcome           { return OutcomeBlocked }
func (AccessNoPermission) Outcome() AccessOutcome      { return OutcomeNoPermission }
func (AccessNotFound) Outcome() AccessOutcome          { return OutcomeNotFound }
func (AccessDeleted) Outcome() AccessOutcome           { return OutcomeDeleted }

// Disclosure is a memory rendered at a disclosure level. Memory is a
// progressively stripped copy; at existence level it is nil and Notice
// carries the only information disclosed.
type Disclosure struct {
	Level  DisclosureLevel `json:"level"`
	Memory *Memory         `json:"memory,omitempty"`
	Notice string          `json:"notice,omitempty"`
}

// MemoryViewResponse pairs the access outcome with the rendered view when
// access was granted at some tier.
type MemoryViewResponse struct {
	Outcome    AccessOutcome `json:"outcome"`
	Result     AccessResult  `json:"result"`
	Disclosure *Disclosure   `json:"disclosure,omitempty"`
}

// Core Models
type AccessAttempt struct {
	ID            bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID       string        `json:"ownerId" bson:"ownerId"`
	AccessorID    string        `json:"accessorId" bson:"accessorId"`
	MemoryID      string        `json:"memoryId" bson:"memoryId"`
	Count         int           `json:"count" bson:"count"`
	LastAttemptAt int64         `json:"lastAttemptAt" bson:"lastAttemptAt"`
}

type AccessBlock struct {
	ID           bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID      string        `json:"ownerId" bson:"ownerId"`
	AccessorID   string        `json:"accessorId" bson:"accessorId"`
	MemoryID     string        `json:"memoryId" bson:"memoryId"`
	Reason       string        `json:"reason" bson:"reason"`
	AttemptCount int           `json:"attemptCount" bson:"attemptCount"`
	BlockedAt    int64         `json:"blockedAt" bson:"blockedAt"`
}
