package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "shortlink:"

// RedisCache 基于 Redis 的解析缓存，键格式 shortlink:<code>，
// 值为 Entry 的 JSON 编码。
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache 创建 Redis 解析缓存
func NewRedisCache(client *redis.Client, logger *zap.SugaredLogger) *RedisCache {
	return &RedisCache{client: client, logger: logger.Named("redis_cache")}
}

// Get 查询缓存
func (c *RedisCache) Get(ctx context.Context, code string) (Entry, bool) {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, keyPrefix+code).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warnf("缓存读取失败: %v", err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.logger.Warnf("缓存条目解析失败: %v", err)
		return Entry{}, false
	}
	return entry, true
}

// SetPositive 写入正向条目
func (c *RedisCache) SetPositive(ctx context.Context, code string, linkID uint, url string, ttl time.Duration) {
	c.set(ctx, code, Entry{LinkID: linkID, URL: url}, ttl)
}

// SetNegative 写入负向条目
func (c *RedisCache) SetNegative(ctx context.Context, code string, ttl time.Duration) {
	c.set(ctx, code, Entry{Negative: true}, ttl)
}

// Invalidate 删除缓存条目（写穿失效）
func (c *RedisCache) Invalidate(ctx context.Context, code string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		c.logger.Warnf("缓存失效失败 code=%s: %v", code, err)
	}
}

func (c *RedisCache) set(ctx context.Context, code string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+code, data, ttl).Err(); err != nil {
		c.logger.Warnf("缓存写入失败 code=%s: %v", code, err)
	}
}
