package service

import (
	"context"
	"fmt"
	"math"
	"memory-service/internal/models"
	"memory-service/internal/repository"
	"memory-service/internal/trust"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type MemoryService struct {
	memories       repository.MemoryStore
	trustConfigs   repository.TrustConfigStore
	access         *AccessControlService
	candidateLimit int
}

func NewMemoryService(memories repository.MemoryStore, trustConfigs repository.TrustConfigStore, access *AccessControlService, candidateLimit int) *MemoryService {
	if candidateLimit <= 0 {
		candidateLimit = 200
	}
	return &MemoryService{
		memories:       memories,
		trustConfigs:   trustConfigs,
		access:         access,
		candidateLimit: candidateLimit,
	}
}

func (s *MemoryService) CreateMemory(ctx context.Context, ownerID string, req *models.CreateMemoryRequest) (*models.Memory, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	requiredTrust := models.DefaultRequiredTrust
	if req.RequiredTrust != nil {
		requiredTrust = *req.RequiredTrust
	}
	if requiredTrust < 0 || requiredTrust > 1 {
		return nil, ErrInvalidTrustValue
	}

	kind := req.Kind
	if kind == "" {
		kind = models.MemoryKindMemory
	}

	memory := &models.Memory{
		OwnerID:       ownerID,
		Kind:          kind,
		Title:         req.Title,
		Content:       req.Content,
		Summary:       req.Summary,
		MemoryType:    req.MemoryType,
		Tags:          req.Tags,
		References:    req.References,
		Participants:  req.Participants,
		Location:      req.Location,
		Environment:   req.Environment,
		RequiredTrust: requiredTrust,
		Embedding:     req.Embedding,
		Version:       1,
	}

	created, err := s.memories.Insert(ctx, memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory: %w", err)
	}
	return created, nil
}

func (s *MemoryService) UpdateMemory(ctx context.Context, callerID, memoryID string, req *models.UpdateMemoryRequest) (*models.Memory, error) {
	memory, err := s.loadOwned(ctx, callerID, memoryID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		memory.Title = *req.Title
	}
	if req.Content != nil {
		memory.Content = *req.Content
	}
	if req.Summary != nil {
		memory.Summary = *req.Summary
	}
	if req.MemoryType != nil {
		memory.MemoryType = *req.MemoryType
	}
	if req.Tags != nil {
		memory.Tags = req.Tags
	}
	if req.References != nil {
		memory.References = req.References
	}
	if req.Participants != nil {
		memory.Participants = req.Participants
	}
	if req.Location != nil {
		memory.Location = req.Location
	}
	if req.Environment != nil {
		memory.Environment = req.Environment
	}
	if req.Embedding != nil {
		memory.Embedding = req.Embedding
	}
	if req.RequiredTrust != nil {
		if *req.RequiredTrust < 0 || *req.RequiredTrust > 1 {
			return nil, ErrInvalidTrustValue
		}
		memory.RequiredTrust = *req.RequiredTrust
	}

	updated, err := s.memories.Update(ctx, memory.ID, memory)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrMemoryNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *MemoryService) DeleteMemory(ctx context.Context, callerID, memoryID string) error {
	memory, err := s.loadOwned(ctx, callerID, memoryID)
	if err != nil {
		return err
	}

	if err := s.memories.SoftDelete(ctx, memory.ID); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrMemoryNotFound
		}
		return err
	}
	return nil
}

func (s *MemoryService) loadOwned(ctx context.Context, callerID, memoryID string) (*models.Memory, error) {
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

// ViewMemory runs the access check and, when some tier of access is earned,
// renders the memory at that tier.
func (s *MemoryService) ViewMemory(ctx context.Context, accessorID, memoryID string) (*models.MemoryViewResponse, error) {
	objectID, err := bson.ObjectIDFromHex(memoryID)
	if err != nil {
		result := models.AccessNotFound{MemoryID: memoryID}
		return &models.MemoryViewResponse{Outcome: result.Outcome(), Result: result}, nil
	}

	memory, err := s.memories.FindByID(ctx, objectID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			result := models.AccessNotFound{MemoryID: memoryID}
			return &models.MemoryViewResponse{Outcome: result.Outcome(), Result: result}, nil
		}
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}

	result, err := s.access.CheckAccess(ctx, accessorID, memory)
	if err != nil {
		return nil, err
	}

	response := &models.MemoryViewResponse{
		Outcome: result.Outcome(),
		Result:  result,
	}

	if granted, ok := result.(models.AccessGranted); ok {
		isSelf := granted.AccessLevel == models.AccessLevelOwner
		response.Disclosure = trust.RenderForDisclosure(memory, granted.Trust, isSelf)
	}

	return response, nil
}

// SearchMemories searches the accessor's own memories, or another owner's
// under that owner's enforcement mode: query filters at the store, prompt
// redacts at render time, hybrid does both. A query embedding re-ranks
// candidates by cosine similarity.
func (s *MemoryService) SearchMemories(ctx context.Context, accessorID string, query *models.MemorySearchQuery) (*models.MemorySearchResult, error) {
	normalizePaging(&query.Page, &query.PageSize)

	if query.OwnerID == "" {
		query.OwnerID = accessorID
	}

	if query.OwnerID == accessorID {
		return s.searchOwn(ctx, query)
	}
	return s.searchCrossUser(ctx, accessorID, query)
}

func (s *MemoryService) searchOwn(ctx context.Context, query *models.MemorySearchQuery) (*models.MemorySearchResult, error) {
	memories, totalCount, err := s.fetchCandidates(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	results := make([]*models.Disclosure, 0, len(memories))
	for _, memory := range memories {
		results = append(results, trust.RenderForDisclosure(memory, trust.FullAccessTrust, true))
	}

	return newMemoryResult(results, totalCount, query.Page, query.PageSize), nil
}

func (s *MemoryService) searchCrossUser(ctx context.Context, accessorID string, query *models.MemorySearchQuery) (*models.MemorySearchResult, error) {
	config, err := s.trustConfigs.Get(ctx, query.OwnerID)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to load trust config: %w", err)
	}
	if config == nil || !config.Enabled || config.HasBlocked(accessorID) {
		return newMemoryResult([]*models.Disclosure{}, 0, query.Page, query.PageSize), nil
	}

	accessorTrust, err := s.access.ResolveTrust(ctx, config, accessorID)
	if err != nil {
		return nil, err
	}

	var maxTrust *float64
	mode := config.EnforcementMode
	if mode == "" {
		mode = models.EnforcementModeQuery
	}
	if mode == models.EnforcementModeQuery || mode == models.EnforcementModeHybrid {
		maxTrust = &accessorTrust
	}

	memories, totalCount, err := s.fetchCandidates(ctx, query, maxTrust)
	if err != nil {
		return nil, err
	}

	results := make([]*models.Disclosure, 0, len(memories))
	for _, memory := range memories {
		if mode == models.EnforcementModeQuery {
			// Store already filtered; everything left is viewable.
			results = append(results, trust.RenderForDisclosure(memory, accessorTrust, false))
			continue
		}
		if !trust.IsTrustSufficient(memory.RequiredTrust, accessorTrust) {
			continue
		}
		results = append(results, trust.RenderForDisclosure(memory, accessorTrust, false))
	}

	return newMemoryResult(results, totalCount, query.Page, query.PageSize), nil
}

// fetchCandidates pages at the store unless an embedding re-rank is
// requested, in which case a larger candidate set is pulled, scored and
// paged here.
func (s *MemoryService) fetchCandidates(ctx context.Context, query *models.MemorySearchQuery, maxTrust *float64) ([]*models.Memory, int64, error) {
	if len(query.Embedding) == 0 {
		return s.memories.Search(ctx, query, maxTrust)
	}

	wide := *query
	wide.Page = 1
	wide.PageSize = s.candidateLimit

	memories, totalCount, err := s.memories.Search(ctx, &wide, maxTrust)
	if err != nil {
		return nil, 0, err
	}

	type scored struct {
		memory *models.Memory
		score  float64
	}
	ranked := make([]scored, 0, len(memories))
	for _, memory := range memories {
		ranked = append(ranked, scored{
			memory: memory,
			score:  cosineSimilarity(query.Embedding, memory.Embedding),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	start := (query.Page - 1) * query.PageSize
	if start > len(ranked) {
		start = len(ranked)
	}
	end := start + query.PageSize
	if end > len(ranked) {
		end = len(ranked)
	}

	page := make([]*models.Memory, 0, end-start)
	for _, entry := range ranked[start:end] {
		page = append(page, entry.memory)
	}
	return page, totalCount, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func newMemoryResult(results []*models.Disclosure, totalCount int64, page, pageSize int) *models.MemorySearchResult {
	pageCount := int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	return &models.MemorySearchResult{
		Results:     results,
		TotalCount:  totalCount,
		PageCount:   pageCount,
		CurrentPage: page,
	}
}
