package event

import (
	"time"
)

type EventType string

const (
	EventTypeMemoryPublished EventType = "memory.published"
	EventTypeMemoryRetracted EventType = "memory.retracted"
	EventTypeMemoryRevised   EventType = "memory.revised"
	EventTypeMemoryModerated EventType = "memory.moderated"
	EventTypeAccessBlocked   EventType = "memory.access.blocked"
)

type MemoryEvent struct {
	EventType    EventType      `json:"eventType"`
	MemoryID     string         `json:"memoryId"`
	OwnerID      string         `json:"ownerId"`
	ActorID      string         `json:"actorId,omitempty"`
	Destinations []string       `json:"destinations,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// Events consumed from other services.

type UserRegisterEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type SpaceDeletedEvent struct {
	SpaceID   string `json:"spaceId"`
	DeletedBy string `json:"deletedBy,omitempty"`
}

func NewMemoryEvent(eventType EventType, memoryID, ownerID, actorID string, destinations []string) *MemoryEvent {
	return &MemoryEvent{
		EventType:    eventType,
		MemoryID:     memoryID,
		OwnerID:      ownerID,
		ActorID:      actorID,
		Destinations: destinations,
		Timestamp:    time.Now().Unix(),
	}
}
