package models

import (
	"encoding/json"
	"time"
)

// Enums and Constants
type TokenAction string

const (
	TokenActionPublish TokenAction = "publish_memory"
	TokenActionRetract TokenAction = "retract_memory"
	TokenActionRevise  TokenAction = "revise_memory"
)

// ConfirmationToken is a single-use handle for a validated but not yet
// executed mutation. Consuming it (confirm or deny) invalidates it.
type ConfirmationToken struct {
	Token     string          `json:"token"`
	Action    TokenAction     `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	IssuedBy  string          `json:"issuedBy"`
	IssuedAt  int64           `json:"issuedAt"`
	ExpiresAt int64           `json:"expiresAt"`
}

func (t *ConfirmationToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// Token payloads
type PublishPayload struct {
	MemoryID     string   `json:"memoryId"`
	Destinations []string `json:"destinations"`
}

type RetractPayload struct {
	MemoryID     string   `json:"memoryId"`
	Destinations []string `json:"destinations"`
}

type RevisePayload struct {
	MemoryID string `json:"memoryId"`
}
