package service

import (
	"context"
	"errors"
	"memory-service/internal/event"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"testing"
)

func newTrustFixture() (*TrustService, *repository.InMemoryTrustConfigStore, *repository.InMemoryEscalationStore) {
	trustConfigs := repository.NewInMemoryTrustConfigStore()
	escalations := repository.NewInMemoryEscalationStore()
	escalation := NewEscalationService(escalations, event.NewMockPublisher())
	return NewTrustService(trustConfigs, escalation), trustConfigs, escalations
}

func TestGetConfigCreatesDefaults(t *testing.T) {
	svc, _, _ := newTrustFixture()

	config, err := svc.GetConfig(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if config.Enabled {
		t.Error("Expected sharing disabled by default")
	}
	if config.DefaultFriendTrust != models.DefaultFriendTrust {
		t.Errorf("Expected friend default %v, got %v", models.DefaultFriendTrust, config.DefaultFriendTrust)
	}
	if config.EnforcementMode != models.EnforcementModeQuery {
		t.Errorf("Expected query enforcement by default, got %s", config.EnforcementMode)
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	svc, _, _ := newTrustFixture()
	ctx := context.Background()

	badTrust := 1.5
	if _, err := svc.UpdateConfig(ctx, "alice", &models.UpdateTrustConfigRequest{DefaultFriendTrust: &badTrust}); !errors.Is(err, ErrInvalidTrustValue) {
		t.Errorf("Expected ErrInvalidTrustValue, got %v", err)
	}

	badMode := models.EnforcementMode("strict")
	if _, err := svc.UpdateConfig(ctx, "alice", &models.UpdateTrustConfigRequest{EnforcementMode: &badMode}); err == nil {
		t.Error("Expected an error for an unknown enforcement mode")
	}

	enabled := true
	mode := models.EnforcementModeHybrid
	updated, err := svc.UpdateConfig(ctx, "alice", &models.UpdateTrustConfigRequest{Enabled: &enabled, EnforcementMode: &mode})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if !updated.Enabled || updated.EnforcementMode != models.EnforcementModeHybrid {
		t.Errorf("Expected enabled hybrid config, got %+v", updated)
	}
}

func TestSetUserTrust(t *testing.T) {
	svc, trustConfigs, _ := newTrustFixture()
	ctx := context.Background()

	if err := svc.SetUserTrust(ctx, "alice", "bob", 1.2); !errors.Is(err, ErrInvalidTrustValue) {
		t.Errorf("Expected ErrInvalidTrustValue, got %v", err)
	}

	if err := svc.SetUserTrust(ctx, "alice", "bob", 0.6); err != nil {
		t.Fatalf("SetUserTrust failed: %v", err)
	}
	config, err := trustConfigs.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.PerUserTrust["bob"] != 0.6 {
		t.Errorf("Expected trust 0.6 for bob, got %v", config.PerUserTrust["bob"])
	}

	if err := svc.RemoveUserTrust(ctx, "alice", "bob"); err != nil {
		t.Fatalf("RemoveUserTrust failed: %v", err)
	}
	config, _ = trustConfigs.Get(ctx, "alice")
	if _, ok := config.PerUserTrust["bob"]; ok {
		t.Error("Expected bob's override removed")
	}
}

func TestBlockAndUnblockUser(t *testing.T) {
	svc, trustConfigs, _ := newTrustFixture()
	ctx := context.Background()

	if err := svc.BlockUser(ctx, "alice", "bob"); err != nil {
		t.Fatalf("BlockUser failed: %v", err)
	}
	config, err := trustConfigs.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if !config.HasBlocked("bob") {
		t.Error("Expected bob blocked")
	}

	if err := svc.UnblockUser(ctx, "alice", "bob"); err != nil {
		t.Fatalf("UnblockUser failed: %v", err)
	}
	config, _ = trustConfigs.Get(ctx, "alice")
	if config.HasBlocked("bob") {
		t.Error("Expected bob unblocked")
	}

	// Unblocking an owner with no config is a no-op, not an error.
	if err := svc.UnblockUser(ctx, "nobody", "bob"); err != nil {
		t.Errorf("Expected no error for a missing config, got %v", err)
	}
}

func TestClearEscalation(t *testing.T) {
	svc, _, escalations := newTrustFixture()
	ctx := context.Background()

	if err := svc.ClearEscalation(ctx, "alice", &models.ClearEscalationRequest{}); err == nil {
		t.Error("Expected an error for missing identifiers")
	}

	req := &models.ClearEscalationRequest{AccessorID: "bob", MemoryID: "mem-1"}
	if err := svc.ClearEscalation(ctx, "alice", req); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("Expected ErrMemoryNotFound for a missing block, got %v", err)
	}

	block := &models.AccessBlock{OwnerID: "alice", AccessorID: "bob", MemoryID: "mem-1", Reason: "test"}
	if err := escalations.SetBlock(ctx, block); err != nil {
		t.Fatalf("Failed to seed block: %v", err)
	}
	if _, err := escalations.IncrementAttempts(ctx, "alice", "bob", "mem-1"); err != nil {
		t.Fatalf("Failed to seed attempts: %v", err)
	}

	if err := svc.ClearEscalation(ctx, "alice", req); err != nil {
		t.Fatalf("ClearEscalation failed: %v", err)
	}

	blocks, err := svc.ListEscalations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListEscalations failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("Expected no blocks after clear, got %d", len(blocks))
	}
}
