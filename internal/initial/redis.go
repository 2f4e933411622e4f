package initial

import (
	"context"
	"fmt"
	"time"

	"ragcore/internal/config"
	"ragcore/pkg/redis"
	"ragcore/pkg/zlog"

	goredis "github.com/redis/go-redis/v9"
)

// Redis 只服务向量缓存，连不上不影响启动，缓存层会自动穿透。
func init() {
	conf := config.GetConfig()
	host := conf.RedisConfig.Host
	if host == "" {
		zlog.Info("Redis 未配置，向量缓存不启用")
		return
	}

	port := conf.RedisConfig.Port
	if port == 0 {
		port = 6379
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     conf.RedisConfig.Password,
		DB:           conf.RedisConfig.DB,
		PoolSize:     conf.RedisConfig.PoolSize,
		MinIdleConns: conf.RedisConfig.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zlog.Warn(fmt.Sprintf("Redis 连接失败，向量缓存不启用: %v", err))
		_ = client.Close()
		return
	}

	redis.SetClient(client)
	zlog.Info("Redis 连接成功: " + addr)
}
