package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shortlink-engine/internal/cache"
	"shortlink-engine/internal/clicks"
	"shortlink-engine/internal/middleware"
	"shortlink-engine/internal/model"
	"shortlink-engine/internal/resolver"
	"shortlink-engine/internal/service"
	"shortlink-engine/internal/shortcode"
	"shortlink-engine/internal/store"
	auth "shortlink-engine/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

// setupTest 为集成测试初始化一个干净的环境，返回路由和清理函数
func setupTest(t *testing.T) (*gin.Engine, *clicks.Recorder, *store.LinkStore, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("无法连接到内存数据库: %v", err)
	}
	if err := db.AutoMigrate(&model.Link{}, &model.ClickEvent{}, &model.User{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()

	linkStore := store.NewLinkStore(db, sugar)
	clickStore := store.NewClickStore(db, sugar)
	memCache := cache.NewMemoryCache()
	gen := shortcode.NewGenerator(db, sugar)
	recorder := clicks.NewRecorder(linkStore, clickStore, 256, 1, sugar)
	recorder.Start()

	svc := service.NewLinkService(linkStore, clickStore, gen, memCache, sugar)
	res := resolver.New(linkStore, memCache, recorder, 10*time.Minute, time.Second, sugar)
	linkHandler := NewLinkHandler(svc, res, "http://localhost:8080")
	tokenManager := auth.NewManager("test-secret", "test", 1)

	router := gin.New()
	router.POST("/api/shorten", linkHandler.CreateShortLink)
	router.GET("/:code", linkHandler.RedirectToOriginal)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(tokenManager))
	api.GET("/links/:id", linkHandler.GetLink)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	admin.GET("/stats", linkHandler.GetGlobalStats)

	t.Cleanup(func() {
		recorder.Stop()
		gen.Stop()
		memCache.Stop()
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return router, recorder, linkStore, tokenManager
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// 创建 -> 重定向的完整流程
func TestLinkHandler_CreateAndRedirect(t *testing.T) {
	router, recorder, linkStore, _ := setupTest(t)

	originalURL := "https://www.example.com/very/long/path/that/needs/shortening"
	w := postJSON(t, router, "/api/shorten", CreateLinkRequest{URL: originalURL})
	assert.Equal(t, http.StatusCreated, w.Code, "创建短链接时状态码应为 201")

	var createResp CreateLinkResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &createResp))
	assert.NotEmpty(t, createResp.ShortCode)

	req, _ := http.NewRequest(http.MethodGet, "/"+createResp.ShortCode, nil)
	req.Header.Set("Referer", "https://referrer.example.com")
	req.Header.Set("User-Agent", "test-agent")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)

	assert.Equal(t, http.StatusFound, w2.Code, "访问短码时状态码应为 302")
	assert.Equal(t, originalURL, w2.Header().Get("Location"))

	// 排空点击队列后验证记账
	recorder.Stop()
	link, err := linkStore.GetByCode(createResp.ShortCode)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), link.ClickCount)
}

func TestLinkHandler_CustomCodeConflict(t *testing.T) {
	router, _, _, _ := setupTest(t)

	w := postJSON(t, router, "/api/shorten", CreateLinkRequest{URL: "https://example.com/a", CustomCode: "abc123"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, router, "/api/shorten", CreateLinkRequest{URL: "https://example.com/b", CustomCode: "abc123"})
	assert.Equal(t, http.StatusConflict, w.Code, "重复的自定义短码应返回 409")
}

func TestLinkHandler_InvalidURL(t *testing.T) {
	router, _, _, _ := setupTest(t)

	w := postJSON(t, router, "/api/shorten", CreateLinkRequest{URL: "notaurl"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// 管理员专属接口由中间件拦截，普通用户拿 403
func TestLinkHandler_AdminGuard(t *testing.T) {
	router, _, _, tokenManager := setupTest(t)

	userToken, err := tokenManager.GenerateToken(1, "user1", "user")
	assert.NoError(t, err)
	adminToken, err := tokenManager.GenerateToken(2, "root", "admin")
	assert.NoError(t, err)

	get := func(token string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, "/api/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, get(userToken).Code, "普通用户访问管理员接口应被拒绝")
	assert.Equal(t, http.StatusOK, get(adminToken).Code)

	// 无令牌直接被认证中间件挡下
	req, _ := http.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// 详情接口返回链接与事件条数，非所有者与不存在同口径
func TestLinkHandler_LinkDetail(t *testing.T) {
	router, recorder, linkStore, tokenManager := setupTest(t)

	owner := uint(7)
	link := &model.Link{ShortCode: "det001", OriginalURL: "https://example.com/d", OwnerID: &owner, IsActive: true}
	assert.NoError(t, linkStore.Create(link))

	req, _ := http.NewRequest(http.MethodGet, "/det001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	recorder.Stop()

	get := func(userID uint, role string) *httptest.ResponseRecorder {
		token, _ := tokenManager.GenerateToken(userID, "u", role)
		req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/api/links/%d", link.ID), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w = get(owner, "user")
	assert.Equal(t, http.StatusOK, w.Code)
	var detail LinkDetailResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "det001", detail.Link.ShortCode)
	assert.Equal(t, int64(1), detail.RecordedClicks)

	assert.Equal(t, http.StatusNotFound, get(8, "user").Code, "非所有者不能探知链接是否存在")
	assert.Equal(t, http.StatusOK, get(99, "admin").Code)
}

// 不存在与已过期的短码返回完全相同形状的 404
func TestLinkHandler_NotFoundShape(t *testing.T) {
	router, _, _, _ := setupTest(t)

	past := time.Now().Add(-time.Hour)
	w := postJSON(t, router, "/api/shorten", CreateLinkRequest{URL: "https://example.com/old", CustomCode: "exp001", ExpiresAt: &past})
	assert.Equal(t, http.StatusCreated, w.Code)

	get := func(code string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, "/"+code, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	missing := get("doesnotexist")
	expired := get("exp001")

	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusNotFound, expired.Code)
	assert.JSONEq(t, missing.Body.String(), expired.Body.String(), "两种未找到的响应体必须一致")
}
