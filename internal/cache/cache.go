package cache

import (
	"context"
	"time"
)

// Entry 一条解析缓存：正向条目携带链接 id 和目标 URL，
// 负向条目（Negative=true）表示"不存在/不可解析"的短 TTL 判定。
type Entry struct {
	LinkID   uint   `json:"link_id,omitempty"`
	URL      string `json:"url,omitempty"`
	Negative bool   `json:"negative,omitempty"`
}

// ResolutionCache 解析缓存。实现必须并发安全，
// 且任何方法都不得在持有内部锁时做外部 I/O。
// 缓存故障一律静默降级：Get 未命中即可，写入失败只记日志。
type ResolutionCache interface {
	Get(ctx context.Context, code string) (Entry, bool)
	SetPositive(ctx context.Context, code string, linkID uint, url string, ttl time.Duration)
	SetNegative(ctx context.Context, code string, ttl time.Duration)
	Invalidate(ctx context.Context, code string)
}
