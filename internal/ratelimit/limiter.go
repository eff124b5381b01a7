// 文件: internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter 每个用户的冷却限制
type Limiter interface {
	// Allow 返回是否放行；拒绝时返回剩余等待时间
	Allow(ctx context.Context, userID int64) (bool, time.Duration)
}

// RedisLimiter 基于 SET NX PX 的分布式冷却
type RedisLimiter struct {
	client   *redis.Client
	cooldown time.Duration
	prefix   string
}

func NewRedisLimiter(client *redis.Client, cooldown time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, cooldown: cooldown, prefix: "ratelimit:"}
}

func (l *RedisLimiter) key(userID int64) string {
	return l.prefix + strconv.FormatInt(userID, 10)
}

// Allow Redis 故障时放行
func (l *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, time.Duration) {
	key := l.key(userID)
	ok, err := l.client.SetNX(ctx, key, time.Now().UnixMilli(), l.cooldown).Result()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "RedisLimiter.Allow",
			"data":   logrus.Fields{"user_id": userID},
		}).Warnf("Redis限流失败，放行请求: %v", err)
		return true, 0
	}
	if ok {
		return true, 0
	}

	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return false, l.cooldown
	}
	return false, ttl
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter 进程内冷却，单实例部署或 Redis 未配置时使用
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	cooldown time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(cooldown time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		visitors: make(map[int64]*visitor),
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID int64) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.cooldown), 1)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, l.cooldown
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup 清理超过 olderThan 未活动的用户，返回清理数量
func (l *MemoryLimiter) Cleanup(olderThan time.Duration) int {
	cutoff := l.now().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, id)
			removed++
		}
	}
	return removed
}

// Size 当前跟踪的用户数
func (l *MemoryLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
