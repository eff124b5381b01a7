// 文件: internal/compressor/resolver.go
package compressor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid api key format")
	ErrEmptyDefaultKey = errors.New("default api key is empty")
	apiKeyPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]{32}$`)
)

// CredentialStore 用户 Key 的持久化
type CredentialStore interface {
	GetAPIKey(ctx context.Context, userID int64) (string, bool, error)
	SaveAPIKey(ctx context.Context, userID int64, apiKey string) error
	DeleteAPIKey(ctx context.Context, userID int64) (bool, error)
}

// KeyCache 进程内用户 Key 缓存，无过期；空字符串表示该用户没有自定义 Key
// 每次 Set/Delete 都会推进该用户的版本号，回填前用版本号判断期间是否有写入
type KeyCache struct {
	mu   sync.RWMutex
	keys map[int64]string
	gens map[int64]uint64
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[int64]string), gens: make(map[int64]uint64)}
}

func (c *KeyCache) Get(userID int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[userID]
	return key, ok
}

// Generation 当前版本号，在存储查询之前读取
func (c *KeyCache) Generation(userID int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[userID]
}

func (c *KeyCache) Set(userID int64, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[userID] = key
	c.gens[userID]++
}

// SetIfUnchanged 仅当版本号仍为 gen 时写入，返回是否写入
func (c *KeyCache) SetIfUnchanged(userID int64, gen uint64, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return false
	}
	c.keys[userID] = key
	return true
}

func (c *KeyCache) Delete(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, userID)
	c.gens[userID]++
}

func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Resolver 决定每个用户使用的 API Key：自定义优先，否则默认 Key
type Resolver struct {
	store      CredentialStore
	cache      *KeyCache
	defaultKey string
}

// NewResolver 创建 Resolver，默认 Key 为空时返回错误
func NewResolver(store CredentialStore, cache *KeyCache, defaultKey string) (*Resolver, error) {
	if defaultKey == "" {
		return nil, ErrEmptyDefaultKey
	}
	if cache == nil {
		cache = NewKeyCache()
	}
	return &Resolver{store: store, cache: cache, defaultKey: defaultKey}, nil
}

// Resolve 返回用户的有效 Key，从不失败
func (r *Resolver) Resolve(ctx context.Context, userID int64) string {
	if key, ok := r.cache.Get(userID); ok {
		if key == "" {
			return r.defaultKey
		}
		return key
	}

	startTime := time.Now()
	gen := r.cache.Generation(userID)
	key, found, err := r.store.GetAPIKey(ctx, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "Resolve",
			"took":   time.Since(startTime),
			"data":   logrus.Fields{"user_id": userID},
		}).Warnf("查询用户Key失败，使用默认Key: %v", err)
		return r.defaultKey
	}
	if !found {
		r.cache.SetIfUnchanged(userID, gen, "")
		return r.defaultKey
	}

	// 查询期间 Key 被设置或删除时不回填，避免旧 Key 覆盖新状态
	r.cache.SetIfUnchanged(userID, gen, key)
	return key
}

// SetKey 保存用户自定义 Key 并刷新缓存
func (r *Resolver) SetKey(ctx context.Context, userID int64, key string) error {
	if !ValidateAPIKey(key) {
		return ErrInvalidAPIKey
	}
	if err := r.store.SaveAPIKey(ctx, userID, key); err != nil {
		return fmt.Errorf("保存用户Key失败: %w", err)
	}
	r.cache.Set(userID, key)

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "SetKey",
		"data":   logrus.Fields{"user_id": userID, "api_key": MaskKey(key)},
	}).Info("用户Key已更新")
	return nil
}

// RemoveKey 删除用户自定义 Key；缓存无论如何都会被清除
func (r *Resolver) RemoveKey(ctx context.Context, userID int64) (bool, error) {
	defer r.cache.Delete(userID)

	removed, err := r.store.DeleteAPIKey(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("删除用户Key失败: %w", err)
	}
	return removed, nil
}

// HasCustomKey 用户是否设置了自定义 Key
func (r *Resolver) HasCustomKey(ctx context.Context, userID int64) (bool, error) {
	if key, ok := r.cache.Get(userID); ok {
		return key != "", nil
	}
	_, found, err := r.store.GetAPIKey(ctx, userID)
	return found, err
}

// ValidateAPIKey 校验 Key 格式
func ValidateAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}

// MaskKey 日志中只保留 Key 的首尾
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
