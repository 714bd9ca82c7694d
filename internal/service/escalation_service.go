package service

import (
	"context"
	"fmt"
	"log"
	"memory-service/internal/event"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"time"
)

const (
	// TrustPenalty is subtracted from the reported trust on each failed
	// attempt, floored at zero. It only affects the message returned to the
	// accessor; the stored config is never touched.
	TrustPenalty = 0.1

	MaxAttemptsBeforeBlock = 3
)

// EscalationService turns repeated insufficient-trust attempts on the same
// (owner, accessor, memory) triple into a block. Attempt and block state is
// an audit trail: it is never rolled back when an enclosing request fails.
type EscalationService struct {
	escalations repository.EscalationStore
	publisher   event.Publisher
}

func NewEscalationService(escalations repository.EscalationStore, publisher event.Publisher) *EscalationService {
	return &EscalationService{
		escalations: escalations,
		publisher:   publisher,
	}
}

// HandleInsufficientTrust records the failed attempt and returns either
// InsufficientTrust with the attempts remaining, or Blocked once the attempt
// count reaches the threshold.
func (s *EscalationService) HandleInsufficientTrust(ctx context.Context, ownerID, accessorID, memoryID string, requiredTrust, rawTrust float64) (models.AccessResult, error) {
	attempt, err := s.escalations.IncrementAttempts(ctx, ownerID, accessorID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to record access attempt: %w", err)
	}

	if attempt.Count >= MaxAttemptsBeforeBlock {
		block := &models.AccessBlock{
			OwnerID:      ownerID,
			AccessorID:   accessorID,
			MemoryID:     memoryID,
			Reason:       fmt.Sprintf("blocked after %d insufficient-trust attempts", attempt.Count),
			AttemptCount: attempt.Count,
			BlockedAt:    time.Now().Unix(),
		}
		if err := s.escalations.SetBlock(ctx, block); err != nil {
			return nil, fmt.Errorf("failed to set access block: %w", err)
		}

		blockedEvent := event.NewMemoryEvent(event.EventTypeAccessBlocked, memoryID, ownerID, accessorID, nil)
		if err := s.publisher.PublishMemoryEvent(blockedEvent); err != nil {
			log.Printf("Failed to publish access blocked event: %v", err)
		}

		return models.AccessBlocked{
			Reason:    block.Reason,
			BlockedAt: block.BlockedAt,
		}, nil
	}

	actualTrust := rawTrust - TrustPenalty
	if actualTrust < 0 {
		actualTrust = 0
	}

	return models.AccessInsufficientTrust{
		RequiredTrust:     requiredTrust,
		ActualTrust:       actualTrust,
		AttemptsRemaining: MaxAttemptsBeforeBlock - attempt.Count,
	}, nil
}

func (s *EscalationService) GetBlock(ctx context.Context, ownerID, accessorID, memoryID string) (*models.AccessBlock, error) {
	return s.escalations.GetBlock(ctx, ownerID, accessorID, memoryID)
}

func (s *EscalationService) ListBlocks(ctx context.Context, ownerID string) ([]*models.AccessBlock, error) {
	blocks, err := s.escalations.ListBlocksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

// ClearBlock removes the block and the attempt counter so the accessor
// starts from a clean slate. Owner-initiated only.
func (s *EscalationService) ClearBlock(ctx context.Context, ownerID, accessorID, memoryID string) error {
	if err := s.escalations.RemoveBlock(ctx, ownerID, accessorID, memoryID); err != nil {
		return err
	}
	if err := s.escalations.ResetAttempts(ctx, ownerID, accessorID, memoryID); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}
