package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists per-site State.
type Store interface {
	Load(ctx context.Context, site string) (*State, error)
	Save(ctx context.Context, site string, state *State) error
}

// MemoryStore keeps state for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Load(_ context.Context, site string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.states[site]
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, site string, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[site] = *state
	return nil
}

// RedisStore shares state between processes through redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

// Key returns the redis key for site.
func Key(site string) string {
	return KeyPrefix + ":" + site
}

func (r *RedisStore) Load(ctx context.Context, site string) (*State, error) {
	data, err := r.redis.Get(ctx, Key(site)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse rate limit state: %w", err)
	}
	return &state, nil
}

// Save stores state until shortly after the block ends.
func (r *RedisStore) Save(ctx context.Context, site string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rate limit state: %w", err)
	}

	ttl := time.Until(state.BlockedUntil) + time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := r.redis.Set(ctx, Key(site), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set rate limit state: %w", err)
	}
	return nil
}
