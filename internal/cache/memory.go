package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内解析缓存，未配置 Redis 时使用（测试也用它）。
// 读写锁只保护 map 本身，临界区内没有任何 I/O。
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]memoryItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryCache 创建进程内缓存并启动过期清理
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		items:    make(map[string]memoryItem),
		stopChan: make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get 查询缓存，过期条目视为未命中并顺手删除
func (c *MemoryCache) Get(_ context.Context, code string) (Entry, bool) {
	c.mu.RLock()
	item, ok := c.items[code]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, code)
		c.mu.Unlock()
		return Entry{}, false
	}
	return item.entry, true
}

// SetPositive 写入正向条目
func (c *MemoryCache) SetPositive(_ context.Context, code string, linkID uint, url string, ttl time.Duration) {
	c.set(code, Entry{LinkID: linkID, URL: url}, ttl)
}

// SetNegative 写入负向条目
func (c *MemoryCache) SetNegative(_ context.Context, code string, ttl time.Duration) {
	c.set(code, Entry{Negative: true}, ttl)
}

// Invalidate 删除缓存条目
func (c *MemoryCache) Invalidate(_ context.Context, code string) {
	c.mu.Lock()
	delete(c.items, code)
	c.mu.Unlock()
}

// Stop 停止后台清理
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *MemoryCache) set(code string, entry Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[code] = memoryItem{entry: entry, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for code, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, code)
				}
			}
			c.mu.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
