package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"memory-service/internal/event"
	"memory-service/internal/models"
	"memory-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// PublicationService orchestrates publish, retract, revise and moderate for
// memories copied into spaces and groups. Publish, retract and revise only
// validate and issue a confirmation token; the mutation happens when the
// token is confirmed. Moderation mutates directly since it only changes
// visibility, never content.
type PublicationService struct {
	memories     repository.MemoryStore
	publications repository.PublicationStore
	spaces       repository.SpaceStore
	credentials  repository.CredentialsFetcher
	confirmation *ConfirmationTokenService
	access       *AccessControlService
	publisher    event.Publisher
}

func NewPublicationService(
	memories repository.MemoryStore,
	publications repository.PublicationStore,
	spaces repository.SpaceStore,
	credentials repository.CredentialsFetcher,
	confirmation *ConfirmationTokenService,
	access *AccessControlService,
	publisher event.Publisher,
) *PublicationService {
	s := &PublicationService{
		memories:     memories,
		publications: publications,
		spaces:       spaces,
		credentials:  credentials,
		confirmation: confirmation,
		access:       access,
		publisher:    publisher,
	}

	confirmation.RegisterExecutor(models.TokenActionPublish, s.executePublish)
	confirmation.RegisterExecutor(models.TokenActionRetract, s.executeRetract)
	confirmation.RegisterExecutor(models.TokenActionRevise, s.executeRevise)

	return s
}

func CompositeID(ownerID, memoryID string) string {
	return ownerID + ":" + memoryID
}

func (s *PublicationService) loadOwnedMemory(ctx context.Context, callerID, memoryID string) (*models.Memory, error) {
	objectID, err := bson.ObjectIDFromHex(memoryID)
	if err != nil {
		return nil, ErrMemoryNotFound
	}

	memory, err := s.memories.FindByID(ctx, objectID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	if memory.IsDeleted {
		return nil, ErrMemoryDeleted
	}
	if memory.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	return memory, nil
}

// Publish validates the request and issues a publish token. All failure
// modes surface here, before any state exists to clean up.
func (s *PublicationService) Publish(ctx context.Context, callerID string, req *models.PublishRequest) (*models.TokenResponse, error) {
	if len(req.Destinations) == 0 {
		return nil, ErrNoDestinations
	}

	memory, err := s.loadOwnedMemory(ctx, callerID, req.MemoryID)
	if err != nil {
		return nil, err
	}
	if memory.Kind == models.MemoryKindRelationship {
		return nil, ErrWrongKind
	}

	destinations, err := s.spaces.FindBySpaceIDs(ctx, req.Destinations)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destinations: %w", err)
	}
	known := make(map[string]bool, len(destinations))
	for _, d := range destinations {
		known[d.SpaceID] = true
	}
	for _, id := range req.Destinations {
		if !known[id] {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, id)
		}
		if memory.IsPublishedTo(id) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPublished, id)
		}
	}

	payload := models.PublishPayload{MemoryID: req.MemoryID, Destinations: req.Destinations}
	token, err := s.confirmation.Issue(ctx, models.TokenActionPublish, payload, callerID)
	if err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		Token:     token.Token,
		Action:    token.Action,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Retract validates that the memory is published to every destination given
// and issues a retract token.
func (s *PublicationService) Retract(ctx context.Context, callerID string, req *models.RetractRequest) (*models.TokenResponse, error) {
	if len(req.Destinations) == 0 {
		return nil, ErrNoDestinations
	}

	memory, err := s.loadOwnedMemory(ctx, callerID, req.MemoryID)
	if err != nil {
		return nil, err
	}

	for _, id := range req.Destinations {
		if !memory.IsPublishedTo(id) {
			return nil, fmt.Errorf("%w: %s", ErrNotPublished, id)
		}
	}

	payload := models.RetractPayload{MemoryID: req.MemoryID, Destinations: req.Destinations}
	token, err := s.confirmation.Issue(ctx, models.TokenActionRetract, payload, callerID)
	if err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		Token:     token.Token,
		Action:    token.Action,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Revise issues a token that, when confirmed, republishes the memory's
// current content to every destination it is already in. Non-owners with
// revise standing on the copies may also call this, so ownership is checked
// per copy at confirm time instead of here.
func (s *PublicationService) Revise(ctx context.Context, callerID string, req *models.ReviseRequest) (*models.TokenResponse, error) {
	objectID, err := bson.ObjectIDFromHex(req.MemoryID)
	if err != nil {
		return nil, ErrMemoryNotFound
	}

	memory, err := s.memories.FindByID(ctx, objectID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	if memory.IsDeleted {
		return nil, ErrMemoryDeleted
	}

	copies, err := s.publications.FindBySource(ctx, req.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load published copies: %w", err)
	}
	if len(copies) == 0 {
		return nil, ErrNoPublishedCopies
	}

	payload := models.RevisePayload{MemoryID: req.MemoryID}
	token, err := s.confirmation.Issue(ctx, models.TokenActionRevise, payload, callerID)
	if err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		Token:     token.Token,
		Action:    token.Action,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Confirm executes the deferred action behind the token.
func (s *PublicationService) Confirm(ctx context.Context, callerID, tokenID string) (*models.PublishReport, error) {
	result, err := s.confirmation.Confirm(ctx, tokenID, callerID)
	if err != nil {
		return nil, err
	}

	report, ok := result.(*models.PublishReport)
	if !ok {
		return nil, fmt.Errorf("unexpected confirmation result type %T", result)
	}
	return report, nil
}

// Deny discards the pending action.
func (s *PublicationService) Deny(ctx context.Context, callerID, tokenID string) error {
	return s.confirmation.Deny(ctx, tokenID, callerID)
}

// executePublish copies the memory into each destination collection. The
// store offers no cross-document transaction, so each destination is
// re-validated and written on its own and the report lists failures
// explicitly instead of pretending the batch committed.
func (s *PublicationService) executePublish(ctx context.Context, token *models.ConfirmationToken) (any, error) {
	var payload models.PublishPayload
	if err := json.Unmarshal(token.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode publish payload: %w", err)
	}

	memory, err := s.loadOwnedMemory(ctx, token.IssuedBy, payload.MemoryID)
	if err != nil {
		return nil, err
	}

	compositeID := CompositeID(memory.OwnerID, payload.MemoryID)
	report := &models.PublishReport{
		Action:      models.TokenActionPublish,
		MemoryID:    payload.MemoryID,
		CompositeID: compositeID,
		Succeeded:   []string{},
	}

	for _, destinationID := range payload.Destinations {
		if err := s.publishToDestination(ctx, memory, destinationID, compositeID); err != nil {
			report.Failed = append(report.Failed, models.DestinationError{
				DestinationID: destinationID,
				Error:         err.Error(),
			})
			continue
		}
		report.Succeeded = append(report.Succeeded, destinationID)
	}

	if len(report.Succeeded) > 0 {
		publishedEvent := event.NewMemoryEvent(event.EventTypeMemoryPublished, payload.MemoryID, memory.OwnerID, token.IssuedBy, report.Succeeded)
		if err := s.publisher.PublishMemoryEvent(publishedEvent); err != nil {
			log.Printf("Failed to publish memory published event: %v", err)
		}
	}

	return report, nil
}

func (s *PublicationService) publishToDestination(ctx context.Context, memory *models.Memory, destinationID, compositeID string) error {
	space, err := s.spaces.FindBySpaceID(ctx, destinationID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrInvalidDestination
		}
		return fmt.Errorf("failed to resolve destination: %w", err)
	}
	if memory.IsPublishedTo(destinationID) {
		return ErrAlreadyPublished
	}

	status := models.ModerationApproved
	if space.RequireModeration {
		status = models.ModerationPending
	}

	pub := &models.PublishedMemory{
		CompositeID:    compositeID,
		DestinationID:  destinationID,
		SourceMemoryID: memory.ID.Hex(),
		Title:          memory.Title,
		Content:        memory.Content,
		Summary:        memory.Summary,
		MemoryType:     memory.MemoryType,
		Tags:           memory.Tags,
		ACL: models.PublishedACL{
			AuthorID:         memory.OwnerID,
			WriteMode:        space.WriteModeOrDefault(),
			ModerationStatus: status,
		},
	}
	if space.Kind == models.SpaceKindGroup {
		pub.ACL.GroupIDs = []string{destinationID}
	}

	if _, err := s.publications.Upsert(ctx, pub); err != nil {
		return err
	}
	if err := s.memories.AddDestination(ctx, memory.ID, space.Kind, destinationID); err != nil {
		return fmt.Errorf("failed to track destination: %w", err)
	}
	return nil
}

func (s *PublicationService) executeRetract(ctx context.Context, token *models.ConfirmationToken) (any, error) {
	var payload models.RetractPayload
	if err := json.Unmarshal(token.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode retract payload: %w", err)
	}

	memory, err := s.loadOwnedMemory(ctx, token.IssuedBy, payload.MemoryID)
	if err != nil {
		return nil, err
	}

	compositeID := CompositeID(memory.OwnerID, payload.MemoryID)
	report := &models.PublishReport{
		Action:      models.TokenActionRetract,
		MemoryID:    payload.MemoryID,
		CompositeID: compositeID,
		Succeeded:   []string{},
	}

	for _, destinationID := range payload.Destinations {
		if err := s.retractFromDestination(ctx, memory, destinationID, compositeID); err != nil {
			report.Failed = append(report.Failed, models.DestinationError{
				DestinationID: destinationID,
				Error:         err.Error(),
			})
			continue
		}
		report.Succeeded = append(report.Succeeded, destinationID)
	}

	if len(report.Succeeded) > 0 {
		retractedEvent := event.NewMemoryEvent(event.EventTypeMemoryRetracted, payload.MemoryID, memory.OwnerID, token.IssuedBy, report.Succeeded)
		if err := s.publisher.PublishMemoryEvent(retractedEvent); err != nil {
			log.Printf("Failed to publish memory retracted event: %v", err)
		}
	}

	return report, nil
}

func (s *PublicationService) retractFromDestination(ctx context.Context, memory *models.Memory, destinationID, compositeID string) error {
	if !memory.IsPublishedTo(destinationID) {
		return ErrNotPublished
	}

	kind := models.SpaceKindSpace
	for _, id := range memory.GroupIDs {
		if id == destinationID {
			kind = models.SpaceKindGroup
		}
	}

	if err := s.publications.SoftDelete(ctx, destinationID, compositeID); err != nil && err != mongo.ErrNoDocuments {
		return err
	}
	if err := s.memories.RemoveDestination(ctx, memory.ID, kind, destinationID); err != nil {
		return fmt.Errorf("failed to untrack destination: %w", err)
	}
	return nil
}

// executeRevise overwrites every live copy with the source memory's current
// content. When the confirming user is not the copy's effective owner the
// copy's write ACL decides, so a revise can partially apply across
// destinations with different ACLs.
func (s *PublicationService) executeRevise(ctx context.Context, token *models.ConfirmationToken) (any, error) {
	var payload models.RevisePayload
	if err := json.Unmarshal(token.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode revise payload: %w", err)
	}

	objectID, err := bson.ObjectIDFromHex(payload.MemoryID)
	if err != nil {
		return nil, ErrMemoryNotFound
	}
	memory, err := s.memories.FindByID(ctx, objectID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	if memory.IsDeleted {
		return nil, ErrMemoryDeleted
	}

	copies, err := s.publications.FindBySource(ctx, payload.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load published copies: %w", err)
	}
	if len(copies) == 0 {
		return nil, ErrNoPublishedCopies
	}

	report := &models.PublishReport{
		Action:      models.TokenActionRevise,
		MemoryID:    payload.MemoryID,
		CompositeID: copies[0].CompositeID,
		Succeeded:   []string{},
	}

	for _, pub := range copies {
		if err := s.reviseCopy(ctx, token.IssuedBy, memory, pub); err != nil {
			report.Failed = append(report.Failed, models.DestinationError{
				DestinationID: pub.DestinationID,
				Error:         err.Error(),
			})
			continue
		}
		report.Succeeded = append(report.Succeeded, pub.DestinationID)
	}

	if len(report.Succeeded) > 0 {
		revisedEvent := event.NewMemoryEvent(event.EventTypeMemoryRevised, payload.MemoryID, memory.OwnerID, token.IssuedBy, report.Succeeded)
		if err := s.publisher.PublishMemoryEvent(revisedEvent); err != nil {
			log.Printf("Failed to publish memory revised event: %v", err)
		}
	}

	return report, nil
}

func (s *PublicationService) reviseCopy(ctx context.Context, callerID string, memory *models.Memory, pub *models.PublishedMemory) error {
	allowed, err := s.access.CanRevise(ctx, callerID, &pub.ACL, s.credentials)
	if err != nil {
		return err
	}
	if !allowed {
		allowed, err = s.access.CanOverwrite(ctx, callerID, &pub.ACL, s.credentials)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return ErrReviseNotAllowed
	}

	updated := *pub
	updated.Title = memory.Title
	updated.Content = memory.Content
	updated.Summary = memory.Summary
	updated.MemoryType = memory.MemoryType
	updated.Tags = memory.Tags

	_, err = s.publications.Upsert(ctx, &updated)
	return err
}

// Moderate sets the moderation status on one published copy. The caller
// must moderate the destination; no confirmation token is involved since
// only visibility changes.
func (s *PublicationService) Moderate(ctx context.Context, callerID string, req *models.ModerateRequest) error {
	if req.Action != models.ModerationActionApprove && req.Action != models.ModerationActionReject {
		return ErrInvalidModeration
	}

	space, err := s.spaces.FindBySpaceID(ctx, req.DestinationID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrInvalidDestination
		}
		return fmt.Errorf("failed to resolve destination: %w", err)
	}
	if !space.HasModerator(callerID) {
		return ErrModeratorRequired
	}

	pub, err := s.publications.FindBySourceAndDestination(ctx, req.MemoryID, req.DestinationID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrMemoryNotFound
		}
		return fmt.Errorf("failed to load published copy: %w", err)
	}

	status := models.ModerationApproved
	if req.Action == models.ModerationActionReject {
		status = models.ModerationRejected
	}

	if err := s.publications.UpdateModeration(ctx, pub.DestinationID, pub.CompositeID, status, callerID); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrMemoryNotFound
		}
		return err
	}

	moderatedEvent := event.NewMemoryEvent(event.EventTypeMemoryModerated, req.MemoryID, pub.ACL.AuthorID, callerID, []string{req.DestinationID})
	moderatedEvent.Data = map[string]any{"status": string(status)}
	if err := s.publisher.PublishMemoryEvent(moderatedEvent); err != nil {
		log.Printf("Failed to publish memory moderated event: %v", err)
	}

	return nil
}

// Search spans all public destinations when none is given. Results are
// approved and non-deleted copies only.
func (s *PublicationService) Search(ctx context.Context, query *models.PublicationSearchQuery) (*models.PublicationSearchResult, error) {
	normalizePaging(&query.Page, &query.PageSize)
	query.Status = models.ModerationApproved

	var destinationIDs []string
	if query.DestinationID == "" {
		publicSpaces, err := s.spaces.ListPublic(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list public spaces: %w", err)
		}
		destinationIDs = make([]string, 0, len(publicSpaces))
		for _, space := range publicSpaces {
			destinationIDs = append(destinationIDs, space.SpaceID)
		}
	}

	pubs, totalCount, err := s.publications.Search(ctx, query, destinationIDs)
	if err != nil {
		return nil, err
	}

	return newPublicationResult(pubs, totalCount, query.Page, query.PageSize), nil
}

// Query filters by destination, author, and status. Non-approved statuses
// are visible only to moderators of the destination.
func (s *PublicationService) Query(ctx context.Context, callerID string, query *models.PublicationSearchQuery) (*models.PublicationSearchResult, error) {
	normalizePaging(&query.Page, &query.PageSize)

	if query.Status != "" && query.Status != models.ModerationApproved {
		if query.DestinationID == "" {
			return nil, ErrModeratorRequired
		}
		space, err := s.spaces.FindBySpaceID(ctx, query.DestinationID)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrInvalidDestination
			}
			return nil, fmt.Errorf("failed to resolve destination: %w", err)
		}
		if !space.HasModerator(callerID) {
			return nil, ErrModeratorRequired
		}
	}

	pubs, totalCount, err := s.publications.Search(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	return newPublicationResult(pubs, totalCount, query.Page, query.PageSize), nil
}

// ModerationQueue lists pending copies across every destination the caller
// moderates.
func (s *PublicationService) ModerationQueue(ctx context.Context, callerID, destinationID string, page, pageSize int) (*models.PublicationSearchResult, error) {
	normalizePaging(&page, &pageSize)

	moderated, err := s.spaces.ListModeratedBy(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderated spaces: %w", err)
	}
	if len(moderated) == 0 {
		return nil, ErrModeratorRequired
	}

	destinationIDs := make([]string, 0, len(moderated))
	for _, space := range moderated {
		if destinationID != "" && space.SpaceID != destinationID {
			continue
		}
		destinationIDs = append(destinationIDs, space.SpaceID)
	}
	if len(destinationIDs) == 0 {
		return nil, ErrModeratorRequired
	}

	pubs, totalCount, err := s.publications.ListPending(ctx, destinationIDs, page, pageSize)
	if err != nil {
		return nil, err
	}

	return newPublicationResult(pubs, totalCount, page, pageSize), nil
}

// ModerationCounts returns the pending count per destination the caller
// moderates, for queue badges.
func (s *PublicationService) ModerationCounts(ctx context.Context, callerID string) (map[string]int64, error) {
	moderated, err := s.spaces.ListModeratedBy(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderated spaces: %w", err)
	}
	if len(moderated) == 0 {
		return nil, ErrModeratorRequired
	}

	destinationIDs := make([]string, 0, len(moderated))
	for _, space := range moderated {
		destinationIDs = append(destinationIDs, space.SpaceID)
	}

	counts, err := s.publications.PendingCounts(ctx, destinationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending publications: %w", err)
	}
	for _, id := range destinationIDs {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
	return counts, nil
}

func normalizePaging(page, pageSize *int) {
	if *page < 1 {
		*page = 1
	}
	if *pageSize < 1 || *pageSize > 100 {
		*pageSize = 20
	}
}

func newPublicationResult(pubs []*models.PublishedMemory, totalCount int64, page, pageSize int) *models.PublicationSearchResult {
	pageCount := int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	return &models.PublicationSearchResult{
		Publications: pubs,
		TotalCount:   totalCount,
		PageCount:    pageCount,
		CurrentPage:  page,
	}
}
