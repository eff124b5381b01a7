// 文件: internal/storage/redis.go
package storage

import (
	"context"
	"fmt"
	"time"

	"image-compressor/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient 创建 Redis 客户端并测试连接；Addr 为空时返回 nil, nil
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	startTime := time.Now()

	// 步骤1：创建Redis客户端配置
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// 步骤2：测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "NewRedisClient",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"addr": cfg.Addr,
		},
	}).Info("Redis连接成功")
	return rdb, nil
}
