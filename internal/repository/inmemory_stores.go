package repository

import (
	"context"
	"memory-service/internal/models"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// In-memory implementations of the store interfaces, used in tests. They
// return mongo.ErrNoDocuments on missing documents so the service layer sees
// the same sentinel as with the Mongo-backed stores.

type InMemoryMemoryStore struct {
	mu       sync.Mutex
	memories map[string]*models.Memory
}

func NewInMemoryMemoryStore() *InMemoryMemoryStore {
	return &InMemoryMemoryStore{
		memories: make(map[string]*models.Memory),
	}
}

func cloneMemory(m *models.Memory) *models.Memory {
	out := *m
	out.Tags = append([]string(nil), m.Tags...)
	out.References = append([]string(nil), m.References...)
	out.Participants = append([]string(nil), m.Participants...)
	out.SpaceIDs = append([]string(nil), m.SpaceIDs...)
	out.GroupIDs = append([]string(nil), m.GroupIDs...)
	out.Embedding = append([]float64(nil), m.Embedding...)
	return &out
}

func (s *InMemoryMemoryStore) Insert(_ context.Context, memory *models.Memory) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if memory.ID.IsZero() {
		memory.ID = bson.NewObjectID()
	}
	currentTime := time.Now().Unix()
	if memory.Metadata.CreatedAt == 0 {
		memory.Metadata.CreatedAt = currentTime
	}
	memory.Metadata.UpdatedAt = currentTime

	s.memories[memory.ID.Hex()] = cloneMemory(memory)
	return memory, nil
}

func (s *InMemoryMemoryStore) FindByID(_ context.Context, id bson.ObjectID) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	memory, ok := s.memories[id.Hex()]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return cloneMemory(memory), nil
}

func (s *InMemoryMemoryStore) Update(_ context.Context, id bson.ObjectID, memory *models.Memory) (*models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[id.Hex()]
	if !ok || existing.IsDeleted {
		return nil, mongo.ErrNoDocuments
	}

	existing.Title = memory.Title
	existing.Content = memory.Content
	existing.Summary = memory.Summary
	existing.MemoryType = memory.MemoryType
	existing.Tags = append([]string(nil), memory.Tags...)
	existing.References = append([]string(nil), memory.References...)
	existing.Participants = append([]string(nil), memory.Participants...)
	existing.Location = memory.Location
	existing.Environment = memory.Environment
	existing.RequiredTrust = memory.RequiredTrust
	existing.Embedding = append([]float64(nil), memory.Embedding...)
	existing.Version++
	existing.Metadata.UpdatedAt = time.Now().Unix()

	return cloneMemory(existing), nil
}

func (s *InMemoryMemoryStore) SoftDelete(_ context.Context, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[id.Hex()]
	if !ok || existing.IsDeleted {
		return mongo.ErrNoDocuments
	}
	existing.IsDeleted = true
	existing.DeletedAt = time.Now().Unix()
	return nil
}

func (s *InMemoryMemoryStore) AddDestination(_ context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[id.Hex()]
	if !ok {
		return mongo.ErrNoDocuments
	}

	target := &existing.SpaceIDs
	if kind == models.SpaceKindGroup {
		target = &existing.GroupIDs
	}
	for _, d := range *target {
		if d == destinationID {
			return nil
		}
	}
	*target = append(*target, destinationID)
	return nil
}

func (s *InMemoryMemoryStore) RemoveDestination(_ context.Context, id bson.ObjectID, kind models.SpaceKind, destinationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memories[id.Hex()]
	if !ok {
		return mongo.ErrNoDocuments
	}

	target := &existing.SpaceIDs
	if kind == models.SpaceKindGroup {
		target = &existing.GroupIDs
	}
	filtered := (*target)[:0]
	for _, d := range *target {
		if d != destinationID {
			filtered = append(filtered, d)
		}
	}
	*target = filtered
	return nil
}

func memoryMatchesQuery(m *models.Memory, query *models.MemorySearchQuery) bool {
	if query.Query != "" {
		q := strings.ToLower(query.Query)
		if !strings.Contains(strings.ToLower(m.Title), q) &&
			!strings.Contains(strings.ToLower(m.Content), q) &&
			!strings.Contains(strings.ToLower(m.Summary), q) {
			return false
		}
	}
	if len(query.Tags) > 0 {
		found := false
		for _, want := range query.Tags {
			for _, have := range m.Tags {
				if want == have {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *InMemoryMemoryStore) Search(_ context.Context, query *models.MemorySearchQuery, maxTrust *float64) ([]*models.Memory, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Memory
	for _, m := range s.memories {
		if m.IsDeleted {
			continue
		}
		if query.OwnerID != "" && m.OwnerID != query.OwnerID {
			continue
		}
		if maxTrust != nil && m.RequiredTrust > *maxTrust {
			continue
		}
		if !memoryMatchesQuery(m, query) {
			continue
		}
		matched = append(matched, cloneMemory(m))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.CreatedAt > matched[j].Metadata.CreatedAt
	})

	totalCount := int64(len(matched))
	if query.PageSize > 0 {
		start := (query.Page - 1) * query.PageSize
		if start < 0 {
			start = 0
		}
		if start > len(matched) {
			start = len(matched)
		}
		end := start + query.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, totalCount, nil
}

func (s *InMemoryMemoryStore) HasRelationship(_ context.Context, ownerID, participantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.memories {
		if m.IsDeleted || m.OwnerID != ownerID || m.Kind != models.MemoryKindRelationship {
			continue
		}
		for _, p := range m.Participants {
			if p == participantID {
				return true, nil
			}
		}
	}
	return false, nil
}

type InMemoryTrustConfigStore struct {
	mu      sync.Mutex
	configs map[string]*models.OwnerTrustConfig
}

func NewInMemoryTrustConfigStore() *InMemoryTrustConfigStore {
	return &InMemoryTrustConfigStore{
		configs: make(map[string]*models.OwnerTrustConfig),
	}
}

func cloneConfig(c *models.OwnerTrustConfig) *models.OwnerTrustConfig {
	out := *c
	out.BlockedUsers = append([]string(nil), c.BlockedUsers...)
	out.PerUserTrust = make(map[string]float64, len(c.PerUserTrust))
	for k, v := range c.PerUserTrust {
		out.PerUserTrust[k] = v
	}
	return &out
}

func (s *InMemoryTrustConfigStore) Get(_ context.Context, ownerID string) (*models.OwnerTrustConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, ok := s.configs[ownerID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return cloneConfig(config), nil
}

func (s *InMemoryTrustConfigStore) GetOrCreate(_ context.Context, ownerID string) (*models.OwnerTrustConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, ok := s.configs[ownerID]
	if !ok {
		config = models.NewOwnerTrustConfig(ownerID)
		currentTime := time.Now().Unix()
		config.Metadata = models.Metadata{CreatedAt: currentTime, UpdatedAt: currentTime}
		s.configs[ownerID] = config
	}
	return cloneConfig(config), nil
}

// Put seeds a config directly; test setup helper.
func (s *InMemoryTrustConfigStore) Put(config *models.OwnerTrustConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[config.OwnerID] = cloneConfig(config)
}

func (s *InMemoryTrustConfigStore) Update(_ context.Context, ownerID string, config *models.OwnerTrustConfig) (*models.OwnerTrustConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[ownerID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}

	existing.Enabled = config.Enabled
	existing.PublicEnabled = config.PublicEnabled
	existing.DefaultFriendTrust = config.DefaultFriendTrust
	existing.DefaultPublicTrust = config.DefaultPublicTrust
	existing.EnforcementMode = config.EnforcementMode
	existing.Metadata.UpdatedAt = time.Now().Unix()

	return cloneConfig(existing), nil
}

func (s *InMemoryTrustConfigStore) SetUserTrust(_ context.Context, ownerID, userID string, trust float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[ownerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if existing.PerUserTrust == nil {
		existing.PerUserTrust = make(map[string]float64)
	}
	existing.PerUserTrust[userID] = trust
	return nil
}

func (s *InMemoryTrustConfigStore) RemoveUserTrust(_ context.Context, ownerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[ownerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	delete(existing.PerUserTrust, userID)
	return nil
}

func (s *InMemoryTrustConfigStore) AddBlockedUser(_ context.Context, ownerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[ownerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for _, id := range existing.BlockedUsers {
		if id == userID {
			return nil
		}
	}
	existing.BlockedUsers = append(existing.BlockedUsers, userID)
	return nil
}

func (s *InMemoryTrustConfigStore) RemoveBlockedUser(_ context.Context, ownerID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[ownerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	filtered := existing.BlockedUsers[:0]
	for _, id := range existing.BlockedUsers {
		if id != userID {
			filtered = append(filtered, id)
		}
	}
	existing.BlockedUsers = filtered
	return nil
}

type InMemoryEscalationStore struct {
	mu       sync.Mutex
	attempts map[string]*models.AccessAttempt
	blocks   map[string]*models.AccessBlock
}

func NewInMemoryEscalationStore() *InMemoryEscalationStore {
	return &InMemoryEscalationStore{
		attempts: make(map[string]*models.AccessAttempt),
		blocks:   make(map[string]*models.AccessBlock),
	}
}

func tripleKey(ownerID, accessorID, memoryID string) string {
	return ownerID + "|" + accessorID + "|" + memoryID
}

func (s *InMemoryEscalationStore) IncrementAttempts(_ context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey(ownerID, accessorID, memoryID)
	attempt, ok := s.attempts[key]
	if !ok {
		attempt = &models.AccessAttempt{
			OwnerID:    ownerID,
			AccessorID: accessorID,
			MemoryID:   memoryID,
		}
		s.attempts[key] = attempt
	}
	attempt.Count++
	attempt.LastAttemptAt = time.Now().Unix()

	out := *attempt
	return &out, nil
}

func (s *InMemoryEscalationStore) GetAttempts(_ context.Context, ownerID, accessorID, memoryID string) (*models.AccessAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[tripleKey(ownerID, accessorID, memoryID)]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	out := *attempt
	return &out, nil
}

func (s *InMemoryEscalationStore) ResetAttempts(_ context.Context, ownerID, accessorID, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, tripleKey(ownerID, accessorID, memoryID))
	return nil
}

func (s *InMemoryEscalationStore) GetBlock(_ context.Context, ownerID, accessorID, memoryID string) (*models.AccessBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.blocks[tripleKey(ownerID, accessorID, memoryID)]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	out := *block
	return &out, nil
}

func (s *InMemoryEscalationStore) SetBlock(_ context.Context, block *models.AccessBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *block
	s.blocks[tripleKey(block.OwnerID, block.AccessorID, block.MemoryID)] = &out
	return nil
}

func (s *InMemoryEscalationStore) RemoveBlock(_ context.Context, ownerID, accessorID, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tripleKey(ownerID, accessorID, memoryID)
	if _, ok := s.blocks[key]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(s.blocks, key)
	return nil
}

func (s *InMemoryEscalationStore) ListBlocksByOwner(_ context.Context, ownerID string) ([]*models.AccessBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocks []*models.AccessBlock
	for _, block := range s.blocks {
		if block.OwnerID == ownerID {
			out := *block
			blocks = append(blocks, &out)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].BlockedAt > blocks[j].BlockedAt
	})
	return blocks, nil
}

type InMemoryPublicationStore struct {
	mu   sync.Mutex
	pubs map[string]*models.PublishedMemory
}

func NewInMemoryPublicationStore() *InMemoryPublicationStore {
	return &InMemoryPublicationStore{
		pubs: make(map[string]*models.PublishedMemory),
	}
}

func pubKey(destinationID, compositeID string) string {
	return destinationID + "|" + compositeID
}

func clonePublication(p *models.PublishedMemory) *models.PublishedMemory {
	out := *p
	out.Tags = append([]string(nil), p.Tags...)
	out.ACL.GroupIDs = append([]string(nil), p.ACL.GroupIDs...)
	out.ACL.OverwriteAllowedIDs = append([]string(nil), p.ACL.OverwriteAllowedIDs...)
	return &out
}

func (s *InMemoryPublicationStore) Upsert(_ context.Context, pub *models.PublishedMemory) (*models.PublishedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentTime := time.Now().Unix()
	key := pubKey(pub.DestinationID, pub.CompositeID)

	saved := clonePublication(pub)
	if existing, ok := s.pubs[key]; ok {
		saved.Version = existing.Version + 1
		saved.Metadata.CreatedAt = existing.Metadata.CreatedAt
	} else {
		saved.Version = 1
		saved.Metadata.CreatedAt = currentTime
	}
	saved.IsDeleted = false
	saved.DeletedAt = 0
	saved.Metadata.UpdatedAt = currentTime

	s.pubs[key] = saved
	return clonePublication(saved), nil
}

func (s *InMemoryPublicationStore) FindByCompositeID(_ context.Context, destinationID, compositeID string) (*models.PublishedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.pubs[pubKey(destinationID, compositeID)]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return clonePublication(pub), nil
}

func (s *InMemoryPublicationStore) FindBySourceAndDestination(_ context.Context, sourceMemoryID, destinationID string) (*models.PublishedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pub := range s.pubs {
		if pub.SourceMemoryID == sourceMemoryID && pub.DestinationID == destinationID {
			return clonePublication(pub), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (s *InMemoryPublicationStore) FindBySource(_ context.Context, sourceMemoryID string) ([]*models.PublishedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pubs []*models.PublishedMemory
	for _, pub := range s.pubs {
		if pub.SourceMemoryID == sourceMemoryID && !pub.IsDeleted {
			pubs = append(pubs, clonePublication(pub))
		}
	}
	return pubs, nil
}

func (s *InMemoryPublicationStore) FindByDestination(_ context.Context, destinationID string) ([]*models.PublishedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pubs []*models.PublishedMemory
	for _, pub := range s.pubs {
		if pub.DestinationID == destinationID && !pub.IsDeleted {
			pubs = append(pubs, clonePublication(pub))
		}
	}
	return pubs, nil
}

func (s *InMemoryPublicationStore) SoftDelete(_ context.Context, destinationID, compositeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.pubs[pubKey(destinationID, compositeID)]
	if !ok || pub.IsDeleted {
		return mongo.ErrNoDocuments
	}
	pub.IsDeleted = true
	pub.DeletedAt = time.Now().Unix()
	return nil
}

func (s *InMemoryPublicationStore) UpdateModeration(_ context.Context, destinationID, compositeID string, status models.ModerationStatus, moderatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.pubs[pubKey(destinationID, compositeID)]
	if !ok || pub.IsDeleted {
		return mongo.ErrNoDocuments
	}
	pub.ACL.ModerationStatus = status
	pub.ACL.ModeratedBy = moderatedBy
	pub.ACL.ModeratedAt = time.Now().Unix()
	return nil
}

func (s *InMemoryPublicationStore) Search(_ context.Context, query *models.PublicationSearchQuery, destinationIDs []string) ([]*models.PublishedMemory, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := query.Status
	if status == "" {
		status = models.ModerationApproved
	}

	inScope := func(destinationID string) bool {
		if destinationIDs != nil {
			for _, id := range destinationIDs {
				if id == destinationID {
					return true
				}
			}
			return false
		}
		return query.DestinationID == "" || query.DestinationID == destinationID
	}

	var matched []*models.PublishedMemory
	for _, pub := range s.pubs {
		if pub.IsDeleted || !inScope(pub.DestinationID) {
			continue
		}
		if pub.ACL.ModerationStatus != status {
			continue
		}
		if query.AuthorID != "" && pub.ACL.AuthorID != query.AuthorID {
			continue
		}
		if query.Query != "" {
			q := strings.ToLower(query.Query)
			if !strings.Contains(strings.ToLower(pub.Title), q) &&
				!strings.Contains(strings.ToLower(pub.Content), q) &&
				!strings.Contains(strings.ToLower(pub.Summary), q) {
				continue
			}
		}
		matched = append(matched, clonePublication(pub))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.CreatedAt > matched[j].Metadata.CreatedAt
	})

	totalCount := int64(len(matched))
	if query.PageSize > 0 {
		start := (query.Page - 1) * query.PageSize
		if start < 0 {
			start = 0
		}
		if start > len(matched) {
			start = len(matched)
		}
		end := start + query.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, totalCount, nil
}

func (s *InMemoryPublicationStore) ListPending(_ context.Context, destinationIDs []string, page, pageSize int) ([]*models.PublishedMemory, int64, error) {
	query := &models.PublicationSearchQuery{
		Status:   models.ModerationPending,
		Page:     page,
		PageSize: pageSize,
	}
	return s.Search(context.Background(), query, destinationIDs)
}

func (s *InMemoryPublicationStore) PendingCounts(_ context.Context, destinationIDs []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, pub := range s.pubs {
		if pub.IsDeleted || pub.ACL.ModerationStatus != models.ModerationPending {
			continue
		}
		for _, id := range destinationIDs {
			if id == pub.DestinationID {
				counts[id]++
			}
		}
	}
	return counts, nil
}

type InMemorySpaceStore struct {
	mu     sync.Mutex
	spaces map[string]*models.Space
}

func NewInMemorySpaceStore() *InMemorySpaceStore {
	return &InMemorySpaceStore{
		spaces: make(map[string]*models.Space),
	}
}

func cloneSpace(s *models.Space) *models.Space {
	out := *s
	out.ModeratorIDs = append([]string(nil), s.ModeratorIDs...)
	return &out
}

func (s *InMemorySpaceStore) Upsert(_ context.Context, space *models.Space) (*models.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spaces[space.SpaceID] = cloneSpace(space)
	return cloneSpace(space), nil
}

func (s *InMemorySpaceStore) FindBySpaceID(_ context.Context, spaceID string) (*models.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	space, ok := s.spaces[spaceID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return cloneSpace(space), nil
}

func (s *InMemorySpaceStore) FindBySpaceIDs(_ context.Context, spaceIDs []string) ([]*models.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var spaces []*models.Space
	for _, id := range spaceIDs {
		if space, ok := s.spaces[id]; ok {
			spaces = append(spaces, cloneSpace(space))
		}
	}
	return spaces, nil
}

func (s *InMemorySpaceStore) ListPublic(_ context.Context) ([]*models.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var spaces []*models.Space
	for _, space := range s.spaces {
		if space.Public {
			spaces = append(spaces, cloneSpace(space))
		}
	}
	return spaces, nil
}

func (s *InMemorySpaceStore) ListModeratedBy(_ context.Context, userID string) ([]*models.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var spaces []*models.Space
	for _, space := range s.spaces {
		if space.HasModerator(userID) {
			spaces = append(spaces, cloneSpace(space))
		}
	}
	return spaces, nil
}

func (s *InMemorySpaceStore) Delete(_ context.Context, spaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spaces[spaceID]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(s.spaces, spaceID)
	return nil
}

// InMemoryCredentials is a static credentials fetcher for tests.
type InMemoryCredentials struct {
	Credentials map[string][]models.GroupCredential
}

func NewInMemoryCredentials() *InMemoryCredentials {
	return &InMemoryCredentials{
		Credentials: make(map[string][]models.GroupCredential),
	}
}

func (c *InMemoryCredentials) FetchCredentials(_ context.Context, userID string) ([]models.GroupCredential, error) {
	return c.Credentials[userID], nil
}
