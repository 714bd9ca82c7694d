package service

import (
	"context"
	"encoding/json"
	"errors"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"testing"
	"time"
)

func newTokenService(ttl time.Duration) *ConfirmationTokenService {
	return NewConfirmationTokenService(repository.NewInMemoryTokenStore(), ttl)
}

func TestConfirmDispatchesExecutor(t *testing.T) {
	svc := newTokenService(time.Minute)
	ctx := context.Background()

	var got models.PublishPayload
	svc.RegisterExecutor(models.TokenActionPublish, func(_ context.Context, token *models.ConfirmationToken) (any, error) {
		if err := json.Unmarshal(token.Payload, &got); err != nil {
			return nil, err
		}
		return "done", nil
	})

	payload := models.PublishPayload{MemoryID: "mem-1", Destinations: []string{"space-1"}}
	token, err := svc.Issue(ctx, models.TokenActionPublish, payload, "alice")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if token.Token == "" {
		t.Fatal("Expected a non-empty token id")
	}

	result, err := svc.Confirm(ctx, token.Token, "alice")
	if err != nil {
		t.Fatalf("Failed to confirm: %v", err)
	}
	if result != "done" {
		t.Errorf("Expected executor result, got %v", result)
	}
	if got.MemoryID != "mem-1" || len(got.Destinations) != 1 {
		t.Errorf("Executor saw wrong payload: %+v", got)
	}
}

func TestConfirmIsSingleUse(t *testing.T) {
	svc := newTokenService(time.Minute)
	ctx := context.Background()

	calls := 0
	svc.RegisterExecutor(models.TokenActionRetract, func(context.Context, *models.ConfirmationToken) (any, error) {
		calls++
		return nil, nil
	})

	token, err := svc.Issue(ctx, models.TokenActionRetract, models.RetractPayload{MemoryID: "mem-1"}, "alice")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := svc.Confirm(ctx, token.Token, "alice"); err != nil {
		t.Fatalf("First confirm failed: %v", err)
	}
	if _, err := svc.Confirm(ctx, token.Token, "alice"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("Expected ErrTokenInvalidOrExpired on second confirm, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected executor to run once, ran %d times", calls)
	}
}

func TestDenyPreventsConfirm(t *testing.T) {
	svc := newTokenService(time.Minute)
	ctx := context.Background()

	svc.RegisterExecutor(models.TokenActionPublish, func(context.Context, *models.ConfirmationToken) (any, error) {
		t.Fatal("Executor must not run after deny")
		return nil, nil
	})

	token, err := svc.Issue(ctx, models.TokenActionPublish, models.PublishPayload{MemoryID: "mem-1"}, "alice")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if err := svc.Deny(ctx, token.Token, "alice"); err != nil {
		t.Fatalf("Deny failed: %v", err)
	}
	if _, err := svc.Confirm(ctx, token.Token, "alice"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("Expected ErrTokenInvalidOrExpired after deny, got %v", err)
	}
	if err := svc.Deny(ctx, token.Token, "alice"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound on second deny, got %v", err)
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	svc := newTokenService(-time.Second)
	ctx := context.Background()

	token, err := svc.Issue(ctx, models.TokenActionPublish, models.PublishPayload{MemoryID: "mem-1"}, "alice")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := svc.Confirm(ctx, token.Token, "alice"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("Expected ErrTokenInvalidOrExpired for expired token, got %v", err)
	}
}

func TestConfirmWrongIssuer(t *testing.T) {
	svc := newTokenService(time.Minute)
	ctx := context.Background()

	svc.RegisterExecutor(models.TokenActionPublish, func(context.Context, *models.ConfirmationToken) (any, error) {
		t.Fatal("Executor must not run for a different caller")
		return nil, nil
	})

	token, err := svc.Issue(ctx, models.TokenActionPublish, models.PublishPayload{MemoryID: "mem-1"}, "alice")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := svc.Confirm(ctx, token.Token, "mallory"); !errors.Is(err, ErrTokenWrongIssuer) {
		t.Errorf("Expected ErrTokenWrongIssuer, got %v", err)
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	svc := newTokenService(time.Minute)

	if _, err := svc.Confirm(context.Background(), "no-such-token", "alice"); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Errorf("Expected ErrTokenInvalidOrExpired for unknown token, got %v", err)
	}
}
