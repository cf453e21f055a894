package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyState is the hash holding the shared budget.
const RedisKeyState = "salesys:rate_limit:state"

// Hash fields.
const (
	fieldRemaining  = "remaining"
	fieldLimit      = "limit"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Store persists the observed State. Get returns ok=false when nothing has
// been stored yet.
type Store interface {
	Get(ctx context.Context) (state State, ok bool, err error)
	Set(ctx context.Context, state State) error
}

// RedisStore shares the state between proxy replicas. The hash expires
// shortly after the window resets so an idle proxy starts from Unknown.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store on the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: RedisKeyState}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context) (State, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return State{}, false, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		return State{}, false, nil
	}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s: %w", fieldRemaining, err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s: %w", fieldResetAt, err)
	}
	lastUpdate, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
	}
	limit, _ := strconv.Atoi(fields[fieldLimit])

	return State{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.UnixMilli(resetAt),
		LastUpdate: time.UnixMilli(lastUpdate),
	}, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, state State) error {
	ttl := time.Until(state.ResetAt) + time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key,
		fieldRemaining, state.Remaining,
		fieldLimit, state.Limit,
		fieldResetAt, state.ResetAt.UnixMilli(),
		fieldLastUpdate, state.LastUpdate.UnixMilli(),
	)
	pipe.Expire(ctx, s.key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// MemoryStore keeps the state in process. Used when no Redis is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
	set   bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (s *MemoryStore) Get(context.Context) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.set, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.set = true
	return nil
}
