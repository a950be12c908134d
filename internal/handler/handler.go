package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shortlink-engine/internal/model"
	"shortlink-engine/internal/resolver"
	"shortlink-engine/internal/service"
	"shortlink-engine/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LinkHandler 链接管理与重定向处理器
type LinkHandler struct {
	service  *service.LinkService
	resolver *resolver.Resolver
	baseURL  string
}

// NewLinkHandler 创建处理器实例
func NewLinkHandler(svc *service.LinkService, res *resolver.Resolver, baseURL string) *LinkHandler {
	return &LinkHandler{service: svc, resolver: res, baseURL: baseURL}
}

// HealthCheck godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} gin.H
// @Router /health [get]
func (h *LinkHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// CreateLinkRequest 创建短链接的请求体
type CreateLinkRequest struct {
	URL        string     `json:"url" binding:"required" example:"https://github.com/gin-gonic/gin"`
	CustomCode string     `json:"custom_code" example:"my-link"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// CreateLinkResponse 创建成功的响应
type CreateLinkResponse struct {
	ShortCode string `json:"short_code" example:"aB3dE9"`
	ShortURL  string `json:"short_url" example:"https://s.example.com/aB3dE9"`
}

// CreateShortLink godoc
// @Summary 创建短链接
// @Description 为长 URL 创建短链接，支持自定义短码和过期时间；匿名亦可创建
// @Tags ShortLink
// @Accept json
// @Produce json
// @Param body body CreateLinkRequest true "创建参数"
// @Success 201 {object} CreateLinkResponse
// @Failure 400 {object} gin.H "URL 或短码无效"
// @Failure 409 {object} gin.H "短码冲突"
// @Router /api/shorten [post]
func (h *LinkHandler) CreateShortLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据"})
		return
	}

	var ownerID *uint
	if id, ok := requesterID(c); ok {
		ownerID = &id
	}

	link, err := h.service.Create(c.Request.Context(), service.CreateInput{
		OriginalURL: req.URL,
		CustomCode:  req.CustomCode,
		ExpiresAt:   req.ExpiresAt,
		OwnerID:     ownerID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateLinkResponse{
		ShortCode: link.ShortCode,
		ShortURL:  fmt.Sprintf("%s/%s", h.baseURL, link.ShortCode),
	})
}

// RedirectToOriginal godoc
// @Summary 短码重定向
// @Description 解析短码并 302 跳转；不存在、停用、过期返回同样的 404
// @Tags ShortLink
// @Param code path string true "短码"
// @Success 302
// @Failure 404 {object} gin.H
// @Router /{code} [get]
func (h *LinkHandler) RedirectToOriginal(c *gin.Context) {
	code := c.Param("code")
	meta := resolver.RequestMeta{
		Referrer:  c.GetHeader("Referer"),
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}

	target, ok := h.resolver.Resolve(c.Request.Context(), code, meta)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "链接不存在"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// GetLinks godoc
// @Summary 列出链接
// @Description 普通用户列出自己的链接；管理员可用 owner_id 查他人
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} model.Link
// @Router /api/links [get]
func (h *LinkHandler) GetLinks(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	ownerID := reqID
	if raw := c.Query("owner_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 owner_id"})
			return
		}
		ownerID = uint(parsed)
	}

	links, err := h.service.ListForOwner(ownerID, reqID, isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// LinkDetailResponse 单条链接详情
type LinkDetailResponse struct {
	Link           *model.Link `json:"link"`
	RecordedClicks int64       `json:"recorded_clicks"`
}

// GetLink godoc
// @Summary 链接详情
// @Description 返回链接及其点击事件条数；仅所有者或管理员可见
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Param id path int true "链接 id"
// @Success 200 {object} LinkDetailResponse
// @Failure 404 {object} gin.H
// @Router /api/links/{id} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的链接 id"})
		return
	}

	link, recorded, err := h.service.Get(id, reqID, isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LinkDetailResponse{Link: link, RecordedClicks: recorded})
}

// GetAllLinks godoc
// @Summary 列出全部链接
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} model.Link
// @Failure 403 {object} gin.H
// @Router /api/admin/links [get]
func (h *LinkHandler) GetAllLinks(c *gin.Context) {
	links, err := h.service.ListAll(isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// UpdateLinkRequest 更新链接的请求体，缺省字段不修改
type UpdateLinkRequest struct {
	OriginalURL *string    `json:"original_url"`
	ShortCode   *string    `json:"short_code"`
	IsActive    *bool      `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// UpdateLink godoc
// @Summary 更新链接
// @Description 仅所有者或管理员可修改；改短码会重新做唯一性裁决并写穿失效缓存
// @Tags ShortLink
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path int true "链接 id"
// @Param body body UpdateLinkRequest true "更新字段"
// @Success 200 {object} model.Link
// @Failure 404 {object} gin.H
// @Failure 409 {object} gin.H
// @Router /api/links/{id} [put]
func (h *LinkHandler) UpdateLink(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的链接 id"})
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据"})
		return
	}

	link, err := h.service.Update(c.Request.Context(), id, service.UpdateInput{
		OriginalURL: req.OriginalURL,
		ShortCode:   req.ShortCode,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	}, reqID, isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// DeleteLink godoc
// @Summary 删除链接
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Param id path int true "链接 id"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/links/{id} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的链接 id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, reqID, isAdmin(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// GetStats godoc
// @Summary 聚合统计
// @Description 请求者自己的链接总数、点击总数、活跃数、七天内到期数
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} store.OwnerStats
// @Router /api/stats [get]
func (h *LinkHandler) GetStats(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	stats, err := h.service.Stats(&reqID, reqID, isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetGlobalStats godoc
// @Summary 全局聚合统计
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} store.OwnerStats
// @Failure 403 {object} gin.H
// @Router /api/admin/stats [get]
func (h *LinkHandler) GetGlobalStats(c *gin.Context) {
	reqID, _ := requesterID(c)
	stats, err := h.service.Stats(nil, reqID, isAdmin(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondError 把服务层错误翻译成对外响应。
// 未找到与越权刻意返回同一个 404，避免暴露资源是否存在。
func (h *LinkHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL 格式无效"})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "短码格式无效"})
	case store.IsDuplicateCode(err):
		c.JSON(http.StatusConflict, gin.H{"error": "短码已被占用"})
	case store.IsNotFound(err), store.IsUnauthorized(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "链接不存在"})
	default:
		zap.S().Errorf("请求处理失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用"})
	}
}

// requesterID 从上下文取请求者身份
func requesterID(c *gin.Context) (uint, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := val.(uint)
	return id, ok
}

// isAdmin 判断请求者是否为管理员
func isAdmin(c *gin.Context) bool {
	role, exists := c.Get("role")
	return exists && role == "admin"
}

func parseID(c *gin.Context) (uint, error) {
	raw := c.Param("id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
