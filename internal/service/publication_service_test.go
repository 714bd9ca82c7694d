package service

import (
	"context"
	"errors"
	"memory-service/internal/event"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"testing"
	"time"
)

type publicationFixture struct {
	publication  *PublicationService
	memories     *repository.InMemoryMemoryStore
	publications *repository.InMemoryPublicationStore
	spaces       *repository.InMemorySpaceStore
	credentials  *repository.InMemoryCredentials
	publisher    *event.MockPublisher
}

func newPublicationFixture() *publicationFixture {
	memories := repository.NewInMemoryMemoryStore()
	publications := repository.NewInMemoryPublicationStore()
	spaces := repository.NewInMemorySpaceStore()
	credentials := repository.NewInMemoryCredentials()
	publisher := event.NewMockPublisher()

	trustConfigs := repository.NewInMemoryTrustConfigStore()
	escalation := NewEscalationService(repository.NewInMemoryEscalationStore(), publisher)
	access := NewAccessControlService(trustConfigs, memories, escalation)
	confirmation := NewConfirmationTokenService(repository.NewInMemoryTokenStore(), time.Minute)

	return &publicationFixture{
		publication:  NewPublicationService(memories, publications, spaces, credentials, confirmation, access, publisher),
		memories:     memories,
		publications: publications,
		spaces:       spaces,
		credentials:  credentials,
		publisher:    publisher,
	}
}

func (f *publicationFixture) addSpace(t *testing.T, space *models.Space) {
	t.Helper()
	if space.Kind == "" {
		space.Kind = models.SpaceKindSpace
	}
	if _, err := f.spaces.Upsert(context.Background(), space); err != nil {
		t.Fatalf("Failed to seed space: %v", err)
	}
}

func (f *publicationFixture) addMemory(t *testing.T, memory *models.Memory) *models.Memory {
	t.Helper()
	if memory.Kind == "" {
		memory.Kind = models.MemoryKindMemory
	}
	inserted, err := f.memories.Insert(context.Background(), memory)
	if err != nil {
		t.Fatalf("Failed to seed memory: %v", err)
	}
	return inserted
}

func (f *publicationFixture) publishAndConfirm(t *testing.T, callerID, memoryID string, destinations []string) *models.PublishReport {
	t.Helper()
	ctx := context.Background()

	token, err := f.publication.Publish(ctx, callerID, &models.PublishRequest{
		MemoryID:     memoryID,
		Destinations: destinations,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	report, err := f.publication.Confirm(ctx, callerID, token.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	return report
}

func TestPublishConfirmRoundTrip(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "space-1", Name: "public square", Public: true})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "trip notes", Content: "we went north"})

	report := f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"space-1"})

	if len(report.Succeeded) != 1 || report.Succeeded[0] != "space-1" {
		t.Fatalf("Expected space-1 to succeed, got %+v", report)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Expected no failures, got %+v", report.Failed)
	}

	compositeID := CompositeID("alice", memory.ID.Hex())
	pub, err := f.publications.FindByCompositeID(ctx, "space-1", compositeID)
	if err != nil {
		t.Fatalf("Expected a published copy: %v", err)
	}
	if pub.Title != "trip notes" || pub.Content != "we went north" {
		t.Errorf("Copy does not carry the source content: %+v", pub)
	}
	if pub.ACL.AuthorID != "alice" {
		t.Errorf("Expected author alice, got %s", pub.ACL.AuthorID)
	}
	if pub.ACL.ModerationStatus != models.ModerationApproved {
		t.Errorf("Expected approved on a non-moderated space, got %s", pub.ACL.ModerationStatus)
	}

	// The source memory tracks the destination.
	reloaded, err := f.memories.FindByID(ctx, memory.ID)
	if err != nil {
		t.Fatalf("Failed to reload memory: %v", err)
	}
	if !reloaded.IsPublishedTo("space-1") {
		t.Errorf("Expected spaceIds to contain space-1, got %v", reloaded.SpaceIDs)
	}

	if len(f.publisher.Events) == 0 || f.publisher.Events[len(f.publisher.Events)-1].EventType != event.EventTypeMemoryPublished {
		t.Errorf("Expected a published event, got %+v", f.publisher.Events)
	}
}

func TestPublishValidationFailures(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "space-1"})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})
	relationship := f.addMemory(t, &models.Memory{OwnerID: "alice", Kind: models.MemoryKindRelationship, Title: "bond", Participants: []string{"bob"}})

	testCases := []struct {
		name     string
		callerID string
		req      *models.PublishRequest
		expected error
	}{
		{"no destinations", "alice", &models.PublishRequest{MemoryID: memory.ID.Hex()}, ErrNoDestinations},
		{"unknown memory", "alice", &models.PublishRequest{MemoryID: "not-a-hex-id", Destinations: []string{"space-1"}}, ErrMemoryNotFound},
		{"not the owner", "bob", &models.PublishRequest{MemoryID: memory.ID.Hex(), Destinations: []string{"space-1"}}, ErrNotOwner},
		{"relationship kind", "alice", &models.PublishRequest{MemoryID: relationship.ID.Hex(), Destinations: []string{"space-1"}}, ErrWrongKind},
		{"unknown destination", "alice", &models.PublishRequest{MemoryID: memory.ID.Hex(), Destinations: []string{"nowhere"}}, ErrInvalidDestination},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.publication.Publish(ctx, tc.callerID, tc.req); !errors.Is(err, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestPublishTwiceToSameDestination(t *testing.T) {
	f := newPublicationFixture()

	f.addSpace(t, &models.Space{SpaceID: "space-1"})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"space-1"})

	_, err := f.publication.Publish(context.Background(), "alice", &models.PublishRequest{
		MemoryID:     memory.ID.Hex(),
		Destinations: []string{"space-1"},
	})
	if !errors.Is(err, ErrAlreadyPublished) {
		t.Errorf("Expected ErrAlreadyPublished, got %v", err)
	}
}

func TestPublishPartialReport(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "space-1"})
	f.addSpace(t, &models.Space{SpaceID: "space-2"})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})

	// Token validated against both destinations, then one disappears before
	// confirm. The report carries the partial outcome.
	token, err := f.publication.Publish(ctx, "alice", &models.PublishRequest{
		MemoryID:     memory.ID.Hex(),
		Destinations: []string{"space-1", "space-2"},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := f.spaces.Delete(ctx, "space-2"); err != nil {
		t.Fatalf("Failed to delete space: %v", err)
	}

	report, err := f.publication.Confirm(ctx, "alice", token.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if len(report.Succeeded) != 1 || report.Succeeded[0] != "space-1" {
		t.Errorf("Expected only space-1 to succeed, got %v", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].DestinationID != "space-2" {
		t.Errorf("Expected space-2 to fail, got %+v", report.Failed)
	}
}

func TestRetractRoundTrip(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "space-1", Public: true})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"space-1"})

	token, err := f.publication.Retract(ctx, "alice", &models.RetractRequest{
		MemoryID:     memory.ID.Hex(),
		Destinations: []string{"space-1"},
	})
	if err != nil {
		t.Fatalf("Retract failed: %v", err)
	}
	report, err := f.publication.Confirm(ctx, "alice", token.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("Expected one retraction, got %+v", report)
	}

	reloaded, err := f.memories.FindByID(ctx, memory.ID)
	if err != nil {
		t.Fatalf("Failed to reload memory: %v", err)
	}
	if reloaded.IsPublishedTo("space-1") {
		t.Errorf("Expected space-1 to be untracked, got %v", reloaded.SpaceIDs)
	}

	// The retracted copy no longer surfaces in search.
	result, err := f.publication.Search(ctx, &models.PublicationSearchQuery{DestinationID: "space-1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 0 {
		t.Errorf("Expected empty search after retract, got %d results", result.TotalCount)
	}
}

func TestRetractNotPublished(t *testing.T) {
	f := newPublicationFixture()

	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})

	_, err := f.publication.Retract(context.Background(), "alice", &models.RetractRequest{
		MemoryID:     memory.ID.Hex(),
		Destinations: []string{"space-1"},
	})
	if !errors.Is(err, ErrNotPublished) {
		t.Errorf("Expected ErrNotPublished, got %v", err)
	}
}

func TestReviseRefreshesCopies(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "space-1"})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "v1", Content: "old"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"space-1"})

	updated := *memory
	updated.Title = "v2"
	updated.Content = "new"
	if _, err := f.memories.Update(ctx, memory.ID, &updated); err != nil {
		t.Fatalf("Failed to update memory: %v", err)
	}

	token, err := f.publication.Revise(ctx, "alice", &models.ReviseRequest{MemoryID: memory.ID.Hex()})
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	report, err := f.publication.Confirm(ctx, "alice", token.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("Expected one revised copy, got %+v", report)
	}

	pub, err := f.publications.FindByCompositeID(ctx, "space-1", CompositeID("alice", memory.ID.Hex()))
	if err != nil {
		t.Fatalf("Failed to load copy: %v", err)
	}
	if pub.Title != "v2" || pub.Content != "new" {
		t.Errorf("Expected revised content, got %+v", pub)
	}
	if pub.Version != 2 {
		t.Errorf("Expected copy version 2 after revise, got %d", pub.Version)
	}
}

func TestReviseWriteACL(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	// space-open grants group editors; space-locked is owner_only.
	f.addSpace(t, &models.Space{SpaceID: "space-open", Kind: models.SpaceKindGroup, DefaultWriteMode: models.WriteModeGroupEditors})
	f.addSpace(t, &models.Space{SpaceID: "space-locked"})

	f.credentials.Credentials["bob"] = []models.GroupCredential{
		{GroupID: "space-open", Permissions: models.GroupPermissions{CanRevise: true}},
	}

	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "shared"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"space-open", "space-locked"})

	token, err := f.publication.Revise(ctx, "bob", &models.ReviseRequest{MemoryID: memory.ID.Hex()})
	if err != nil {
		t.Fatalf("Revise failed: %v", err)
	}
	report, err := f.publication.Confirm(ctx, "bob", token.Token)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if len(report.Succeeded) != 1 || report.Succeeded[0] != "space-open" {
		t.Errorf("Expected only space-open to accept bob's revise, got %v", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].DestinationID != "space-locked" {
		t.Errorf("Expected space-locked to reject, got %+v", report.Failed)
	}
}

func TestReviseWithoutCopies(t *testing.T) {
	f := newPublicationFixture()

	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "notes"})

	_, err := f.publication.Revise(context.Background(), "alice", &models.ReviseRequest{MemoryID: memory.ID.Hex()})
	if !errors.Is(err, ErrNoPublishedCopies) {
		t.Errorf("Expected ErrNoPublishedCopies, got %v", err)
	}
}

func TestModerationGate(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{
		SpaceID:           "curated",
		Public:            true,
		RequireModeration: true,
		ModeratorIDs:      []string{"mod"},
	})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "pending piece"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"curated"})

	// Pending copies are invisible to public search.
	result, err := f.publication.Search(ctx, &models.PublicationSearchQuery{DestinationID: "curated"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 0 {
		t.Fatalf("Expected pending copy hidden from search, got %d results", result.TotalCount)
	}

	// But visible in the moderator's queue.
	queue, err := f.publication.ModerationQueue(ctx, "mod", "curated", 1, 20)
	if err != nil {
		t.Fatalf("ModerationQueue failed: %v", err)
	}
	if queue.TotalCount != 1 {
		t.Fatalf("Expected one pending copy in queue, got %d", queue.TotalCount)
	}

	err = f.publication.Moderate(ctx, "mod", &models.ModerateRequest{
		MemoryID:      memory.ID.Hex(),
		DestinationID: "curated",
		Action:        models.ModerationActionApprove,
	})
	if err != nil {
		t.Fatalf("Moderate failed: %v", err)
	}

	result, err = f.publication.Search(ctx, &models.PublicationSearchQuery{DestinationID: "curated"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 1 {
		t.Errorf("Expected approved copy visible in search, got %d results", result.TotalCount)
	}
}

func TestModerationCounts(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "curated", RequireModeration: true, ModeratorIDs: []string{"mod"}})
	f.addSpace(t, &models.Space{SpaceID: "quiet", RequireModeration: true, ModeratorIDs: []string{"mod"}})

	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "piece"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"curated"})

	counts, err := f.publication.ModerationCounts(ctx, "mod")
	if err != nil {
		t.Fatalf("ModerationCounts failed: %v", err)
	}
	if counts["curated"] != 1 {
		t.Errorf("Expected one pending in curated, got %d", counts["curated"])
	}
	if counts["quiet"] != 0 {
		t.Errorf("Expected zero pending in quiet, got %d", counts["quiet"])
	}

	if _, err := f.publication.ModerationCounts(ctx, "nobody"); !errors.Is(err, ErrModeratorRequired) {
		t.Errorf("Expected ErrModeratorRequired for a non-moderator, got %v", err)
	}
}

func TestModerateRequiresModerator(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "curated", RequireModeration: true, ModeratorIDs: []string{"mod"}})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "piece"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"curated"})

	err := f.publication.Moderate(ctx, "alice", &models.ModerateRequest{
		MemoryID:      memory.ID.Hex(),
		DestinationID: "curated",
		Action:        models.ModerationActionApprove,
	})
	if !errors.Is(err, ErrModeratorRequired) {
		t.Errorf("Expected ErrModeratorRequired, got %v", err)
	}

	err = f.publication.Moderate(ctx, "mod", &models.ModerateRequest{
		MemoryID:      memory.ID.Hex(),
		DestinationID: "curated",
		Action:        "promote",
	})
	if !errors.Is(err, ErrInvalidModeration) {
		t.Errorf("Expected ErrInvalidModeration, got %v", err)
	}
}

func TestQueryNonApprovedRequiresModerator(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "curated", RequireModeration: true, ModeratorIDs: []string{"mod"}})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "piece"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"curated"})

	query := &models.PublicationSearchQuery{DestinationID: "curated", Status: models.ModerationPending}
	if _, err := f.publication.Query(ctx, "alice", query); !errors.Is(err, ErrModeratorRequired) {
		t.Errorf("Expected ErrModeratorRequired for non-moderator, got %v", err)
	}

	result, err := f.publication.Query(ctx, "mod", query)
	if err != nil {
		t.Fatalf("Query failed for moderator: %v", err)
	}
	if result.TotalCount != 1 {
		t.Errorf("Expected one pending copy, got %d", result.TotalCount)
	}
}

func TestSearchSpansPublicSpaces(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "public-1", Public: true})
	f.addSpace(t, &models.Space{SpaceID: "private-1", Public: false})

	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "everywhere"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"public-1", "private-1"})

	result, err := f.publication.Search(ctx, &models.PublicationSearchQuery{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("Expected only the public copy, got %d", result.TotalCount)
	}
	if result.Publications[0].DestinationID != "public-1" {
		t.Errorf("Expected the public-1 copy, got %s", result.Publications[0].DestinationID)
	}
}

func TestGroupPublishSetsGroupACL(t *testing.T) {
	f := newPublicationFixture()
	ctx := context.Background()

	f.addSpace(t, &models.Space{SpaceID: "group-1", Kind: models.SpaceKindGroup, DefaultWriteMode: models.WriteModeGroupEditors})
	memory := f.addMemory(t, &models.Memory{OwnerID: "alice", Title: "team notes"})
	f.publishAndConfirm(t, "alice", memory.ID.Hex(), []string{"group-1"})

	pub, err := f.publications.FindByCompositeID(ctx, "group-1", CompositeID("alice", memory.ID.Hex()))
	if err != nil {
		t.Fatalf("Failed to load copy: %v", err)
	}
	if pub.ACL.WriteMode != models.WriteModeGroupEditors {
		t.Errorf("Expected the space's default write mode, got %s", pub.ACL.WriteMode)
	}
	if len(pub.ACL.GroupIDs) != 1 || pub.ACL.GroupIDs[0] != "group-1" {
		t.Errorf("Expected ACL groupIds [group-1], got %v", pub.ACL.GroupIDs)
	}

	reloaded, err := f.memories.FindByID(ctx, memory.ID)
	if err != nil {
		t.Fatalf("Failed to reload memory: %v", err)
	}
	if len(reloaded.GroupIDs) != 1 || reloaded.GroupIDs[0] != "group-1" {
		t.Errorf("Expected groupIds tracking, got %v", reloaded.GroupIDs)
	}
}
