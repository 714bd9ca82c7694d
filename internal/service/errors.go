// Package service holds the business logic: trust-gated access checks with
// escalation, the two-phase confirmation-token ledger, and the publication
// workflow for memories copied into shared spaces and groups.
package service

import (
	"errors"
)

// Domain sentinels. Handlers map these to HTTP statuses; store-layer errors
// are wrapped and never leak raw to clients.
var (
	ErrMemoryNotFound        = errors.New("memory not found")
	ErrMemoryDeleted         = errors.New("memory is deleted")
	ErrNotOwner              = errors.New("caller does not own this memory")
	ErrWrongKind             = errors.New("relationship documents cannot be published")
	ErrNoDestinations        = errors.New("at least one destination is required")
	ErrInvalidDestination    = errors.New("unknown destination")
	ErrAlreadyPublished      = errors.New("memory is already published to this destination")
	ErrNotPublished          = errors.New("memory is not published to some destinations")
	ErrNoPublishedCopies     = errors.New("memory has no published copies")
	ErrTokenInvalidOrExpired = errors.New("confirmation token is invalid or expired")
	ErrTokenNotFound         = errors.New("confirmation token not found")
	ErrTokenWrongIssuer      = errors.New("confirmation token was issued to another user")
	ErrModeratorRequired     = errors.New("moderator access required")
	ErrInvalidTrustValue     = errors.New("trust must be between 0 and 1")
	ErrInvalidModeration     = errors.New("moderation action must be approve or reject")
	ErrReviseNotAllowed      = errors.New("caller may not revise this published copy")
)
