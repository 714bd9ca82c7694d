package service

import (
	"context"
	"fmt"
	"memory-service/internal/models"
	"memory-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TrustService is the owner-facing administration surface for trust
// configuration and escalation state.
type TrustService struct {
	trustConfigs repository.TrustConfigStore
	escalation   *EscalationService
}

func NewTrustService(trustConfigs repository.TrustConfigStore, escalation *EscalationService) *TrustService {
	return &TrustService{
		trustConfigs: trustConfigs,
		escalation:   escalation,
	}
}

// GetConfig materializes the owner's config with defaults on first access.
func (s *TrustService) GetConfig(ctx context.Context, ownerID string) (*models.OwnerTrustConfig, error) {
	config, err := s.trustConfigs.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust config: %w", err)
	}
	return config, nil
}

func (s *TrustService) UpdateConfig(ctx context.Context, ownerID string, req *models.UpdateTrustConfigRequest) (*models.OwnerTrustConfig, error) {
	config, err := s.trustConfigs.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust config: %w", err)
	}

	if req.Enabled != nil {
		config.Enabled = *req.Enabled
	}
	if req.PublicEnabled != nil {
		config.PublicEnabled = *req.PublicEnabled
	}
	if req.DefaultFriendTrust != nil {
		if *req.DefaultFriendTrust < 0 || *req.DefaultFriendTrust > 1 {
			return nil, ErrInvalidTrustValue
		}
		config.DefaultFriendTrust = *req.DefaultFriendTrust
	}
	if req.DefaultPublicTrust != nil {
		if *req.DefaultPublicTrust < 0 || *req.DefaultPublicTrust > 1 {
			return nil, ErrInvalidTrustValue
		}
		config.DefaultPublicTrust = *req.DefaultPublicTrust
	}
	if req.EnforcementMode != nil {
		switch *req.EnforcementMode {
		case models.EnforcementModeQuery, models.EnforcementModePrompt, models.EnforcementModeHybrid:
			config.EnforcementMode = *req.EnforcementMode
		default:
			return nil, fmt.Errorf("invalid enforcement mode: %s", *req.EnforcementMode)
		}
	}

	updated, err := s.trustConfigs.Update(ctx, ownerID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to update trust config: %w", err)
	}
	return updated, nil
}

func (s *TrustService) SetUserTrust(ctx context.Context, ownerID, userID string, trustValue float64) error {
	if trustValue < 0 || trustValue > 1 {
		return ErrInvalidTrustValue
	}

	if _, err := s.trustConfigs.GetOrCreate(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to load trust config: %w", err)
	}
	if err := s.trustConfigs.SetUserTrust(ctx, ownerID, userID, trustValue); err != nil {
		return fmt.Errorf("failed to set user trust: %w", err)
	}
	return nil
}

func (s *TrustService) RemoveUserTrust(ctx context.Context, ownerID, userID string) error {
	err := s.trustConfigs.RemoveUserTrust(ctx, ownerID, userID)
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to remove user trust: %w", err)
	}
	return nil
}

func (s *TrustService) BlockUser(ctx context.Context, ownerID, userID string) error {
	if _, err := s.trustConfigs.GetOrCreate(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to load trust config: %w", err)
	}
	if err := s.trustConfigs.AddBlockedUser(ctx, ownerID, userID); err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

func (s *TrustService) UnblockUser(ctx context.Context, ownerID, userID string) error {
	err := s.trustConfigs.RemoveBlockedUser(ctx, ownerID, userID)
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}

// ListEscalations returns the owner's per-memory access blocks.
func (s *TrustService) ListEscalations(ctx context.Context, ownerID string) ([]*models.AccessBlock, error) {
	return s.escalation.ListBlocks(ctx, ownerID)
}

// ClearEscalation lifts one block. Owner-initiated; blocks never expire on
// their own.
func (s *TrustService) ClearEscalation(ctx context.Context, ownerID string, req *models.ClearEscalationRequest) error {
	if req.AccessorID == "" || req.MemoryID == "" {
		return fmt.Errorf("accessor ID and memory ID are required")
	}

	err := s.escalation.ClearBlock(ctx, ownerID, req.AccessorID, req.MemoryID)
	if err == mongo.ErrNoDocuments {
		return ErrMemoryNotFound
	}
	return err
}
