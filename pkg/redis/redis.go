package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 在本系统里是可选依赖，只承载向量化结果缓存。
// 未配置时 client 保持 nil，调用方通过 IsConnected 判断后降级。
var client *redis.Client

// SetClient 设置 Redis 客户端（由 internal/initial 调用）
func SetClient(c *redis.Client) {
	client = c
}

// Close 关闭 Redis 连接
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// IsConnected 检查 Redis 是否已连接
func IsConnected() bool {
	return client != nil
}

// Get 获取字符串值，key 不存在时返回空串和 nil
func Get(ctx context.Context, key string) (string, error) {
	if client == nil {
		return "", errors.New("Redis 未连接")
	}
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Set 设置字符串值（expiration 为 0 表示不过期）
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if client == nil {
		return errors.New("Redis 未连接")
	}
	return client.Set(ctx, key, value, expiration).Err()
}
