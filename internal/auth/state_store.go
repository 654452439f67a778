package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound 表示 state 不存在或已过期
var ErrStateNotFound = errors.New("auth: state not found")

// StateStore OAuth2 state 存储，state 只能使用一次
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) error
}

// MemoryStateStore 内存实现
type MemoryStateStore struct {
	mu     sync.Mutex
	data   map[string]time.Time
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemoryStateStore 创建内存 state 存储
func NewMemoryStateStore(maxTTL time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		data:   make(map[string]time.Time),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

// Save 写入 state
func (s *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state] = s.now().Add(minDuration(ttl, s.maxTTL))
	return nil
}

// Consume 读取并删除 state
func (s *MemoryStateStore) Consume(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.data[state]
	if !ok {
		return ErrStateNotFound
	}
	delete(s.data, state)
	if s.now().After(expires) {
		return ErrStateNotFound
	}
	return nil
}

// RedisStateStore Redis 实现
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStateStore 创建 Redis state 存储
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: "oauth2:state:",
	}
}

// Save 写入 state
func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+state, "google", ttl).Err()
}

// Consume 读取并删除 state
func (s *RedisStateStore) Consume(ctx context.Context, state string) error {
	if err := s.client.GetDel(ctx, s.prefix+state).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrStateNotFound
		}
		return err
	}
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}
