package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"memory-service/internal/models"
	"sync"
	"time"

	redis_v9 "github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "memory-service-token-"

// RedisTokenStore keeps confirmation tokens in Redis with a TTL. Consume is
// a single GETDEL, so under a concurrent confirm and deny exactly one caller
// receives the record.
type RedisTokenStore struct {
	client *redis_v9.Client
}

func NewRedisTokenStore(client *redis_v9.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func tokenKey(tokenID string) string {
	return tokenKeyPrefix + tokenID
}

func (s *RedisTokenStore) Save(ctx context.Context, token *models.ConfirmationToken, ttl time.Duration) error {
	val, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation token: %w", err)
	}

	if err := s.client.Set(ctx, tokenKey(token.Token), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save confirmation token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, tokenID string) (*models.ConfirmationToken, error) {
	val, err := s.client.Get(ctx, tokenKey(tokenID)).Bytes()
	if err != nil {
		if err == redis_v9.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get confirmation token: %w", err)
	}

	var token models.ConfirmationToken
	if err := json.Unmarshal(val, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confirmation token: %w", err)
	}
	return &token, nil
}

func (s *RedisTokenStore) Consume(ctx context.Context, tokenID string) (*models.ConfirmationToken, error) {
	val, err := s.client.GetDel(ctx, tokenKey(tokenID)).Bytes()
	if err != nil {
		if err == redis_v9.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume confirmation token: %w", err)
	}

	var token models.ConfirmationToken
	if err := json.Unmarshal(val, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confirmation token: %w", err)
	}
	return &token, nil
}

// InMemoryTokenStore is the fallback when Redis is not configured and the
// store used in tests. Expiry is checked on read since there is no reaper.
type InMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]inMemoryToken
}

type inMemoryToken struct {
	token     models.ConfirmationToken
	expiresAt time.Time
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{
		tokens: make(map[string]inMemoryToken),
	}
}

func (s *InMemoryTokenStore) Save(_ context.Context, token *models.ConfirmationToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.Token] = inMemoryToken{
		token:     *token,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *InMemoryTokenStore) Get(_ context.Context, tokenID string) (*models.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[tokenID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	token := entry.token
	return &token, nil
}

func (s *InMemoryTokenStore) Consume(_ context.Context, tokenID string) (*models.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	delete(s.tokens, tokenID)

	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	token := entry.token
	return &token, nil
}
