package service

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"time"

	"shortlink-engine/internal/cache"
	"shortlink-engine/internal/model"
	"shortlink-engine/internal/shortcode"
	"shortlink-engine/internal/store"

	"go.uber.org/zap"
)

// 校验类错误，作为类型化结果返回给调用方，绝不以异常形式外抛
var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrInvalidCode = errors.New("invalid short code")
)

const (
	maxURLLength     = 2048
	maxCodeLength    = 64
	generateAttempts = 5
	// ExpiringWindow 统计"即将过期"的时间窗
	ExpiringWindow = 7 * 24 * time.Hour
)

var codeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LinkService 管理接口：校验 + 鉴权的薄封装，包住 LinkStore。
// 每个调用都要求显式的请求者身份，核心里没有任何环境会话状态。
type LinkService struct {
	links  *store.LinkStore
	clicks *store.ClickStore
	gen    *shortcode.Generator
	cache  cache.ResolutionCache
	logger *zap.SugaredLogger
}

// NewLinkService 创建管理服务
func NewLinkService(links *store.LinkStore, clicks *store.ClickStore, gen *shortcode.Generator, c cache.ResolutionCache, logger *zap.SugaredLogger) *LinkService {
	return &LinkService{links: links, clicks: clicks, gen: gen, cache: c, logger: logger.Named("link_service")}
}

// CreateInput 创建链接的输入
type CreateInput struct {
	OriginalURL string
	CustomCode  string
	ExpiresAt   *time.Time
	OwnerID     *uint
}

// UpdateInput 更新链接的输入，nil 表示不修改
type UpdateInput struct {
	OriginalURL *string
	ShortCode   *string
	IsActive    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Create 创建短链接。自定义短码走与自动生成完全相同的唯一性裁决；
// 自动生成在短码冲突时重试，冲突最终由唯一索引判定。
func (s *LinkService) Create(ctx context.Context, in CreateInput) (*model.Link, error) {
	original, err := validateURL(in.OriginalURL)
	if err != nil {
		return nil, err
	}

	if in.CustomCode != "" {
		if !validCode(in.CustomCode) {
			return nil, ErrInvalidCode
		}
		link := &model.Link{
			ShortCode:   in.CustomCode,
			OriginalURL: original,
			OwnerID:     in.OwnerID,
			IsActive:    true,
			ExpiresAt:   in.ExpiresAt,
		}
		if err := s.links.Create(link); err != nil {
			return nil, err
		}
		// 清掉可能残留的负缓存，新码立即可解析
		s.cache.Invalidate(ctx, link.ShortCode)
		return link, nil
	}

	for i := 0; i < generateAttempts; i++ {
		code, err := s.gen.GetCode()
		if err != nil {
			return nil, err
		}
		link := &model.Link{
			ShortCode:   code,
			OriginalURL: original,
			OwnerID:     in.OwnerID,
			IsActive:    true,
			ExpiresAt:   in.ExpiresAt,
		}
		err = s.links.Create(link)
		if err == nil {
			s.cache.Invalidate(ctx, link.ShortCode)
			return link, nil
		}
		if store.IsDuplicateCode(err) {
			s.logger.Warnf("自动生成短码冲突，重试 %d/%d", i+1, generateAttempts)
			continue
		}
		return nil, err
	}
	return nil, store.ErrDuplicateCode
}

// Update 更新链接，成功后对受影响的短码做写穿失效，
// 正向缓存 TTL 只是兜底，不是一致性的唯一来源。
func (s *LinkService) Update(ctx context.Context, id uint, in UpdateInput, requesterID uint, elevated bool) (*model.Link, error) {
	fields := store.LinkUpdate{
		IsActive:    in.IsActive,
		ExpiresAt:   in.ExpiresAt,
		ClearExpiry: in.ClearExpiry,
	}
	if in.OriginalURL != nil {
		original, err := validateURL(*in.OriginalURL)
		if err != nil {
			return nil, err
		}
		fields.OriginalURL = &original
	}
	if in.ShortCode != nil {
		if !validCode(*in.ShortCode) {
			return nil, ErrInvalidCode
		}
		fields.ShortCode = in.ShortCode
	}

	before, err := s.links.GetByID(id)
	if err != nil {
		return nil, err
	}

	updated, err := s.links.Update(id, fields, requesterID, elevated)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, before.ShortCode)
	if updated.ShortCode != before.ShortCode {
		s.cache.Invalidate(ctx, updated.ShortCode)
	}
	return updated, nil
}

// Delete 删除链接并写穿失效其缓存条目
func (s *LinkService) Delete(ctx context.Context, id uint, requesterID uint, elevated bool) error {
	before, err := s.links.GetByID(id)
	if err != nil {
		return err
	}
	if err := s.links.Delete(id, requesterID, elevated); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, before.ShortCode)
	return nil
}

// Get 返回单条链接及其事件明细条数。click_count 是热路径的累计值，
// 事件条数来自明细表，队列丢弃只会让后者偏少。
func (s *LinkService) Get(id uint, requesterID uint, elevated bool) (*model.Link, int64, error) {
	link, err := s.links.GetByID(id)
	if err != nil {
		return nil, 0, err
	}
	if !elevated && (link.OwnerID == nil || *link.OwnerID != requesterID) {
		return nil, 0, store.ErrUnauthorized
	}
	recorded, err := s.clicks.CountByLink(id)
	if err != nil {
		return nil, 0, err
	}
	return link, recorded, nil
}

// ListForOwner 列出某所有者的链接；非管理员只能看自己的
func (s *LinkService) ListForOwner(ownerID, requesterID uint, elevated bool) ([]model.Link, error) {
	if !elevated && ownerID != requesterID {
		return nil, store.ErrUnauthorized
	}
	return s.links.ListByOwner(ownerID)
}

// ListAll 管理员列出全部链接
func (s *LinkService) ListAll(elevated bool) ([]model.Link, error) {
	if !elevated {
		return nil, store.ErrUnauthorized
	}
	return s.links.ListAll()
}

// Stats 聚合统计：普通用户看自己的，管理员可看全局（ownerID 传 nil）
func (s *LinkService) Stats(ownerID *uint, requesterID uint, elevated bool) (*store.OwnerStats, error) {
	if !elevated && (ownerID == nil || *ownerID != requesterID) {
		return nil, store.ErrUnauthorized
	}
	return s.links.Stats(ownerID, ExpiringWindow)
}

// validateURL 校验绝对 URL，只接受 http/https
func validateURL(raw string) (string, error) {
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// validCode 校验短码字符集与长度
func validCode(code string) bool {
	if len(code) == 0 || len(code) > maxCodeLength {
		return false
	}
	return codeRe.MatchString(code)
}
