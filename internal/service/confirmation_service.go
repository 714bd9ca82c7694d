package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"time"

	"github.com/google/uuid"
)

// Executor performs the deferred mutation for one token action. Executors
// are registered per action; the token service itself knows nothing about
// what a publish or retract does.
type Executor func(ctx context.Context, token *models.ConfirmationToken) (any, error)

// ConfirmationTokenService is a two-phase-commit ledger: Issue records a
// validated pending action, Confirm executes it exactly once, Deny discards
// it. Consumption is atomic at the store, so of a concurrent confirm and
// deny exactly one wins.
type ConfirmationTokenService struct {
	tokens    repository.TokenStore
	ttl       time.Duration
	executors map[models.TokenAction]Executor
}

func NewConfirmationTokenService(tokens repository.TokenStore, ttl time.Duration) *ConfirmationTokenService {
	return &ConfirmationTokenService{
		tokens:    tokens,
		ttl:       ttl,
		executors: make(map[models.TokenAction]Executor),
	}
}

func (s *ConfirmationTokenService) RegisterExecutor(action models.TokenAction, executor Executor) {
	s.executors[action] = executor
}

// Issue persists a pending record and returns the opaque token. Nothing is
// executed yet.
func (s *ConfirmationTokenService) Issue(ctx context.Context, action models.TokenAction, payload any, issuedBy string) (*models.ConfirmationToken, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token payload: %w", err)
	}

	now := time.Now()
	token := &models.ConfirmationToken{
		Token:     uuid.NewString(),
		Action:    action,
		Payload:   data,
		IssuedBy:  issuedBy,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	if err := s.tokens.Save(ctx, token, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to save confirmation token: %w", err)
	}

	log.Printf("Issued %s token for user %s, expires at %d", action, issuedBy, token.ExpiresAt)
	return token, nil
}

// Confirm consumes the token and runs the registered executor. A missing,
// already-consumed, or expired token fails with ErrTokenInvalidOrExpired.
// Only the issuing user may confirm.
func (s *ConfirmationTokenService) Confirm(ctx context.Context, tokenID, callerID string) (any, error) {
	token, err := s.tokens.Consume(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	if token == nil || token.Expired(time.Now()) {
		return nil, ErrTokenInvalidOrExpired
	}
	if token.IssuedBy != callerID {
		return nil, ErrTokenWrongIssuer
	}

	executor, ok := s.executors[token.Action]
	if !ok {
		return nil, fmt.Errorf("no executor registered for action %s", token.Action)
	}

	return executor(ctx, token)
}

// Deny consumes the token without executing. A missing or already-consumed
// token fails with ErrTokenNotFound.
func (s *ConfirmationTokenService) Deny(ctx context.Context, tokenID, callerID string) error {
	token, err := s.tokens.Consume(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("failed to consume confirmation token: %w", err)
	}
	if token == nil {
		return ErrTokenNotFound
	}
	if token.IssuedBy != callerID {
		return ErrTokenWrongIssuer
	}

	log.Printf("Denied %s token issued by %s", token.Action, token.IssuedBy)
	return nil
}
