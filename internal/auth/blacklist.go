package auth

import (
	"context"
	"sync"
	"time"

	"incidentdesk/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Blacklist 已注销令牌存储，按 jti 记录
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) bool
}

type noopBlacklist struct{}

func (noopBlacklist) Revoke(context.Context, string, time.Duration) error { return nil }
func (noopBlacklist) IsRevoked(context.Context, string) bool              { return false }

// RedisBlacklist Redis 实现
type RedisBlacklist struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBlacklist 创建 Redis 黑名单
func NewRedisBlacklist(client redis.UniversalClient) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: "blacklist:token:"}
}

// Revoke 写入黑名单
func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return b.client.Set(ctx, b.prefix+jti, "revoked", ttl).Err()
}

// IsRevoked Redis 故障时放行，避免所有请求失败
func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) bool {
	n, err := b.client.Exists(ctx, b.prefix+jti).Result()
	if err != nil {
		logger.WithContext(ctx).Warn("查询令牌黑名单失败", zap.Error(err))
		return false
	}
	return n > 0
}

// MemoryBlacklist 内存实现，用于未配置 Redis 的单实例部署
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist 创建内存黑名单
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke 写入黑名单并顺带清理过期项
func (b *MemoryBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for k, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, k)
		}
	}
	b.entries[jti] = now.Add(ttl)
	return nil
}

// IsRevoked 是否已注销
func (b *MemoryBlacklist) IsRevoked(_ context.Context, jti string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[jti]
	return ok && !b.now().After(exp)
}
