package service

import (
	"context"
	"memory-service/internal/event"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"testing"
)

func newEscalationFixture() (*EscalationService, *event.MockPublisher) {
	publisher := event.NewMockPublisher()
	return NewEscalationService(repository.NewInMemoryEscalationStore(), publisher), publisher
}

func TestEscalationAttemptCountsAreMonotonic(t *testing.T) {
	svc, _ := newEscalationFixture()
	ctx := context.Background()

	for i := 1; i < MaxAttemptsBeforeBlock; i++ {
		result, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.3)
		if err != nil {
			t.Fatalf("Unexpected error on attempt %d: %v", i, err)
		}

		insufficient, ok := result.(models.AccessInsufficientTrust)
		if !ok {
			t.Fatalf("Expected InsufficientTrust on attempt %d, got %T", i, result)
		}
		if expected := MaxAttemptsBeforeBlock - i; insufficient.AttemptsRemaining != expected {
			t.Errorf("Expected %d attempts remaining, got %d", expected, insufficient.AttemptsRemaining)
		}
	}
}

func TestEscalationBlocksAtThreshold(t *testing.T) {
	svc, publisher := newEscalationFixture()
	ctx := context.Background()

	var result models.AccessResult
	var err error
	for i := 0; i < MaxAttemptsBeforeBlock; i++ {
		result, err = svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.3)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	blocked, ok := result.(models.AccessBlocked)
	if !ok {
		t.Fatalf("Expected Blocked at threshold, got %T", result)
	}
	if blocked.Reason == "" || blocked.BlockedAt == 0 {
		t.Errorf("Expected populated block details, got %+v", blocked)
	}

	block, err := svc.GetBlock(ctx, "owner", "accessor", "mem-1")
	if err != nil {
		t.Fatalf("Expected block to be persisted: %v", err)
	}
	if block.AttemptCount != MaxAttemptsBeforeBlock {
		t.Errorf("Expected attempt count %d on block, got %d", MaxAttemptsBeforeBlock, block.AttemptCount)
	}

	if len(publisher.Events) != 1 || publisher.Events[0].EventType != event.EventTypeAccessBlocked {
		t.Errorf("Expected one access blocked event, got %v", publisher.Events)
	}
}

func TestEscalationTrustFloorNeverNegative(t *testing.T) {
	svc, _ := newEscalationFixture()
	ctx := context.Background()

	result, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.05)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	insufficient, ok := result.(models.AccessInsufficientTrust)
	if !ok {
		t.Fatalf("Expected InsufficientTrust, got %T", result)
	}
	if insufficient.ActualTrust < 0 {
		t.Errorf("Expected non-negative actual trust, got %v", insufficient.ActualTrust)
	}
	if insufficient.ActualTrust != 0 {
		t.Errorf("Expected penalty to floor at 0, got %v", insufficient.ActualTrust)
	}
}

func TestEscalationTriplesAreIndependent(t *testing.T) {
	svc, _ := newEscalationFixture()
	ctx := context.Background()

	for i := 0; i < MaxAttemptsBeforeBlock; i++ {
		if _, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.3); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	result, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-2", 0.75, 0.3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := result.(models.AccessInsufficientTrust); !ok {
		t.Errorf("Expected fresh counter for a different memory, got %T", result)
	}

	result, err = svc.HandleInsufficientTrust(ctx, "owner", "other-accessor", "mem-1", 0.75, 0.3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := result.(models.AccessInsufficientTrust); !ok {
		t.Errorf("Expected fresh counter for a different accessor, got %T", result)
	}
}

func TestClearBlockResetsAttempts(t *testing.T) {
	svc, _ := newEscalationFixture()
	ctx := context.Background()

	for i := 0; i < MaxAttemptsBeforeBlock; i++ {
		if _, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.3); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if err := svc.ClearBlock(ctx, "owner", "accessor", "mem-1"); err != nil {
		t.Fatalf("Failed to clear block: %v", err)
	}

	// The accessor starts over with the full allowance.
	result, err := svc.HandleInsufficientTrust(ctx, "owner", "accessor", "mem-1", 0.75, 0.3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	insufficient, ok := result.(models.AccessInsufficientTrust)
	if !ok {
		t.Fatalf("Expected InsufficientTrust after clear, got %T", result)
	}
	if insufficient.AttemptsRemaining != MaxAttemptsBeforeBlock-1 {
		t.Errorf("Expected %d attempts remaining after clear, got %d", MaxAttemptsBeforeBlock-1, insufficient.AttemptsRemaining)
	}
}
