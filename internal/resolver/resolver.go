package resolver

import (
	"context"
	"time"

	"shortlink-engine/internal/cache"
	"shortlink-engine/internal/clicks"
	"shortlink-engine/internal/store"

	"go.uber.org/zap"
)

// RequestMeta 随解析请求携带的点击元数据，由传输层提取
type RequestMeta struct {
	Referrer  string
	UserAgent string
	IPAddress string
}

// Resolver 热路径：短码 -> 目标 URL。
// 缓存优先，未命中回源存储；不存在、已停用、已过期对调用方
// 是同一种"未找到"判定，区别只体现在内部日志里。
type Resolver struct {
	links       *store.LinkStore
	cache       cache.ResolutionCache
	recorder    *clicks.Recorder
	positiveTTL time.Duration
	negativeTTL time.Duration
	nowFunc     func() time.Time
	logger      *zap.SugaredLogger
}

// New 创建解析器
func New(links *store.LinkStore, c cache.ResolutionCache, recorder *clicks.Recorder,
	positiveTTL, negativeTTL time.Duration, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		links:       links,
		cache:       c,
		recorder:    recorder,
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		nowFunc:     time.Now,
		logger:      logger.Named("resolver"),
	}
}

// Resolve 解析短码。ok 为 false 即"未找到"判定。
// 短码精确匹配、大小写敏感，这里不做任何归一化。
func (r *Resolver) Resolve(ctx context.Context, code string, meta RequestMeta) (string, bool) {
	if entry, hit := r.cache.Get(ctx, code); hit {
		if entry.Negative {
			return "", false
		}
		r.recorder.Record(entry.LinkID, meta.Referrer, meta.UserAgent, meta.IPAddress)
		return entry.URL, true
	}

	link, err := r.links.GetByCode(code)
	if err != nil {
		if store.IsNotFound(err) {
			// 短 TTL 负缓存，吸收对无效短码的反复探测；
			// 新建链接要能尽快可解析，所以 TTL 必须短
			r.cache.SetNegative(ctx, code, r.negativeTTL)
			return "", false
		}
		// 存储故障对外关门降级为未找到，内部保留告警信号
		r.logger.Errorf("解析回源失败 code=%s: %v", code, err)
		return "", false
	}

	now := r.nowFunc()
	if !link.Resolvable(now) {
		// 停用/过期状态会随时间和编辑变化，负缓存必须靠 TTL 失效，
		// 不能永久驻留
		if link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
			r.logger.Infow("短码已过期", "code", code, "link_id", link.ID)
		} else {
			r.logger.Infow("短码已停用", "code", code, "link_id", link.ID)
		}
		r.cache.SetNegative(ctx, code, r.negativeTTL)
		return "", false
	}

	// 正向 TTL 不得越过链接自身的过期时刻
	ttl := r.positiveTTL
	if link.ExpiresAt != nil {
		if remaining := link.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	r.cache.SetPositive(ctx, code, link.ID, link.OriginalURL, ttl)

	r.recorder.Record(link.ID, meta.Referrer, meta.UserAgent, meta.IPAddress)
	return link.OriginalURL, true
}
