package queue

import (
	"testing"

	"incidentdesk/internal/config"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestRedisConnOpt(t *testing.T) {
	t.Run("单节点", func(t *testing.T) {
		opt := RedisConnOpt(config.RedisConfig{Host: "redis", Port: 6380, DB: 2})
		got, ok := opt.(asynq.RedisClientOpt)
		assert.True(t, ok)
		assert.Equal(t, "redis:6380", got.Addr)
		assert.Equal(t, 2, got.DB)
	})

	t.Run("哨兵", func(t *testing.T) {
		opt := RedisConnOpt(config.RedisConfig{Mode: "sentinel", MasterName: "mymaster", SentinelAddrs: []string{"s1:26379"}})
		got, ok := opt.(asynq.RedisFailoverClientOpt)
		assert.True(t, ok)
		assert.Equal(t, "mymaster", got.MasterName)
	})

	t.Run("集群", func(t *testing.T) {
		opt := RedisConnOpt(config.RedisConfig{Mode: "cluster", ClusterAddrs: []string{"c1:7000", "c2:7000"}})
		got, ok := opt.(asynq.RedisClusterClientOpt)
		assert.True(t, ok)
		assert.Len(t, got.Addrs, 2)
	})
}
