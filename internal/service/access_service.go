package service

import (
	"context"
	"fmt"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"memory-service/internal/trust"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// AccessControlService decides whether an accessor may see a memory and at
// what level, and resolves write permissions on published copies.
type AccessControlService struct {
	trustConfigs repository.TrustConfigStore
	memories     repository.MemoryStore
	escalation   *EscalationService
}

func NewAccessControlService(trustConfigs repository.TrustConfigStore, memories repository.MemoryStore, escalation *EscalationService) *AccessControlService {
	return &AccessControlService{
		trustConfigs: trustConfigs,
		memories:     memories,
		escalation:   escalation,
	}
}

// CheckAccess runs the access state machine for one accessor and one memory.
// The outcome is always one of the AccessResult variants; an error means a
// store failure, not a denial. Only the insufficient-trust path mutates
// escalation state.
func (s *AccessControlService) CheckAccess(ctx context.Context, accessorID string, memory *models.Memory) (models.AccessResult, error) {
	if memory == nil {
		return models.AccessNotFound{}, nil
	}
	if memory.IsDeleted {
		return models.AccessDeleted{
			MemoryID:  memory.ID.Hex(),
			DeletedAt: memory.DeletedAt,
		}, nil
	}

	// Owners bypass trust, blocks, even a disabled config.
	if accessorID == memory.OwnerID {
		return models.AccessGranted{
			AccessLevel: models.AccessLevelOwner,
			Trust:       trust.FullAccessTrust,
		}, nil
	}

	config, err := s.trustConfigs.Get(ctx, memory.OwnerID)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to load trust config: %w", err)
	}
	if config == nil || !config.Enabled {
		return models.AccessNoPermission{
			OwnerID:    memory.OwnerID,
			AccessorID: accessorID,
		}, nil
	}

	if config.HasBlocked(accessorID) {
		return models.AccessNoPermission{
			OwnerID:    memory.OwnerID,
			AccessorID: accessorID,
		}, nil
	}

	memoryID := memory.ID.Hex()

	block, err := s.escalation.GetBlock(ctx, memory.OwnerID, accessorID, memoryID)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to check access block: %w", err)
	}
	if block != nil {
		return models.AccessBlocked{
			Reason:    block.Reason,
			BlockedAt: block.BlockedAt,
		}, nil
	}

	accessorTrust, err := s.ResolveTrust(ctx, config, accessorID)
	if err != nil {
		return nil, err
	}

	if trust.IsTrustSufficient(memory.RequiredTrust, accessorTrust) {
		return models.AccessGranted{
			AccessLevel: models.AccessLevelTrusted,
			Trust:       accessorTrust,
		}, nil
	}

	return s.escalation.HandleInsufficientTrust(ctx, memory.OwnerID, accessorID, memoryID, memory.RequiredTrust, accessorTrust)
}

// ResolveTrust resolves the accessor's effective trust, checking the owner's
// relationship memories for friend standing when no per-user override exists.
func (s *AccessControlService) ResolveTrust(ctx context.Context, config *models.OwnerTrustConfig, accessorID string) (float64, error) {
	if _, ok := config.PerUserTrust[accessorID]; ok {
		return trust.ResolveAccessorTrust(config, accessorID, false), nil
	}

	isFriend, err := s.memories.HasRelationship(ctx, config.OwnerID, accessorID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve friend standing: %w", err)
	}
	return trust.ResolveAccessorTrust(config, accessorID, isFriend), nil
}

// CanRevise reports whether the user may revise the published copy. The
// effective owner always may; otherwise the write mode decides, with group
// mode requiring a can_revise credential in one of the ACL's groups.
func (s *AccessControlService) CanRevise(ctx context.Context, userID string, acl *models.PublishedACL, credentials repository.CredentialsFetcher) (bool, error) {
	if userID == acl.EffectiveOwner() {
		return true, nil
	}

	switch acl.EffectiveWriteMode() {
	case models.WriteModeAnyone:
		return true, nil
	case models.WriteModeGroupEditors:
		return s.hasGroupPermission(ctx, userID, acl, credentials, func(p models.GroupPermissions) bool {
			return p.CanRevise
		})
	default:
		return false, nil
	}
}

// CanOverwrite is CanRevise's stricter sibling: group mode requires
// can_overwrite, and an explicit entry in overwriteAllowedIds always wins
// regardless of write mode.
func (s *AccessControlService) CanOverwrite(ctx context.Context, userID string, acl *models.PublishedACL, credentials repository.CredentialsFetcher) (bool, error) {
	if userID == acl.EffectiveOwner() {
		return true, nil
	}
	if acl.AllowsOverwriteFor(userID) {
		return true, nil
	}

	switch acl.EffectiveWriteMode() {
	case models.WriteModeAnyone:
		return true, nil
	case models.WriteModeGroupEditors:
		return s.hasGroupPermission(ctx, userID, acl, credentials, func(p models.GroupPermissions) bool {
			return p.CanOverwrite
		})
	default:
		return false, nil
	}
}

func (s *AccessControlService) hasGroupPermission(ctx context.Context, userID string, acl *models.PublishedACL, credentials repository.CredentialsFetcher, allowed func(models.GroupPermissions) bool) (bool, error) {
	if credentials == nil {
		return false, nil
	}

	creds, err := credentials.FetchCredentials(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch group credentials: %w", err)
	}

	for _, cred := range creds {
		for _, groupID := range acl.GroupIDs {
			if cred.GroupID == groupID && allowed(cred.Permissions) {
				return true, nil
			}
		}
	}
	return false, nil
}
