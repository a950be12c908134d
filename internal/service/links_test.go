package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"shortlink-engine/internal/cache"
	"shortlink-engine/internal/clicks"
	"shortlink-engine/internal/model"
	"shortlink-engine/internal/resolver"
	"shortlink-engine/internal/shortcode"
	"shortlink-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

type fixture struct {
	links    *store.LinkStore
	cache    *cache.MemoryCache
	service  *LinkService
	resolver *resolver.Resolver
	recorder *clicks.Recorder
}

// newFixture 服务层和解析器共享同一个缓存实例，
// 这样才能验证写路径的写穿失效真的作用在读路径上
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("无法连接到内存数据库: %v", err)
	}
	if err := db.AutoMigrate(&model.Link{}, &model.ClickEvent{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()

	links := store.NewLinkStore(db, sugar)
	events := store.NewClickStore(db, sugar)
	memCache := cache.NewMemoryCache()
	gen := shortcode.NewGenerator(db, sugar)
	recorder := clicks.NewRecorder(links, events, 256, 1, sugar)
	recorder.Start()

	svc := NewLinkService(links, events, gen, memCache, sugar)
	// 长正向 TTL：只有写穿失效才能让读路径看到变更
	res := resolver.New(links, memCache, recorder, time.Hour, time.Second, sugar)

	t.Cleanup(func() {
		recorder.Stop()
		gen.Stop()
		memCache.Stop()
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return &fixture{links: links, cache: memCache, service: svc, resolver: res, recorder: recorder}
}

func ownerPtr(id uint) *uint { return &id }

func TestLinkService_CreateAndResolveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/a", CustomCode: "abc123"})
	assert.NoError(t, err)
	assert.Equal(t, "abc123", link.ShortCode)

	target, ok := f.resolver.Resolve(ctx, "abc123", resolver.RequestMeta{})
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/a", target)

	// 相同自定义短码的第二次创建必须拿到冲突
	_, err = f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/b", CustomCode: "abc123"})
	assert.True(t, store.IsDuplicateCode(err))
}

func TestLinkService_InvalidURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"", "notaurl", "ftp://example.com/file", "http://", "://bad"} {
		_, err := f.service.Create(ctx, CreateInput{OriginalURL: raw})
		assert.ErrorIs(t, err, ErrInvalidURL, "raw=%q", raw)
	}
}

func TestLinkService_InvalidCustomCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, code := range []string{"has space", "中文码", "semi;colon", "slash/code"} {
		_, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com", CustomCode: code})
		assert.ErrorIs(t, err, ErrInvalidCode, "code=%q", code)
	}
}

func TestLinkService_GeneratedCodeShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com"})
	assert.NoError(t, err)
	assert.Len(t, link.ShortCode, shortcode.CodeLength)
}

// 创建时就已过期的链接立即判未找到
func TestLinkService_CreateAlreadyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com", CustomCode: "gone01", ExpiresAt: &past})
	assert.NoError(t, err)

	_, ok := f.resolver.Resolve(ctx, "gone01", resolver.RequestMeta{})
	assert.False(t, ok)
}

// 写穿失效：停用后即便正缓存 TTL 远未到期，解析也必须立即判未找到
func TestLinkService_DeactivateInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/x", CustomCode: "hot001", OwnerID: ownerPtr(1)})
	assert.NoError(t, err)

	// 先解析一次，把正缓存灌进去
	_, ok := f.resolver.Resolve(ctx, "hot001", resolver.RequestMeta{})
	assert.True(t, ok)
	_, hit := f.cache.Get(ctx, "hot001")
	assert.True(t, hit, "正缓存应已写入")

	inactive := false
	_, err = f.service.Update(ctx, link.ID, UpdateInput{IsActive: &inactive}, 1, false)
	assert.NoError(t, err)

	_, ok = f.resolver.Resolve(ctx, "hot001", resolver.RequestMeta{})
	assert.False(t, ok, "停用必须立即生效，不能等 TTL")
}

func TestLinkService_ShortCodeChangeInvalidatesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/y", CustomCode: "oldcod", OwnerID: ownerPtr(1)})
	assert.NoError(t, err)

	_, ok := f.resolver.Resolve(ctx, "oldcod", resolver.RequestMeta{})
	assert.True(t, ok)

	newCode := "newcod"
	_, err = f.service.Update(ctx, link.ID, UpdateInput{ShortCode: &newCode}, 1, false)
	assert.NoError(t, err)

	_, ok = f.resolver.Resolve(ctx, "oldcod", resolver.RequestMeta{})
	assert.False(t, ok, "旧短码改名后必须立即不可解析")

	target, ok := f.resolver.Resolve(ctx, "newcod", resolver.RequestMeta{})
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/y", target)
}

func TestLinkService_DeleteInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/z", CustomCode: "del002", OwnerID: ownerPtr(1)})
	assert.NoError(t, err)

	_, ok := f.resolver.Resolve(ctx, "del002", resolver.RequestMeta{})
	assert.True(t, ok)

	assert.NoError(t, f.service.Delete(ctx, link.ID, 1, false))

	_, ok = f.resolver.Resolve(ctx, "del002", resolver.RequestMeta{})
	assert.False(t, ok)
}

func TestLinkService_OwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com", CustomCode: "mine01", OwnerID: ownerPtr(1)})
	assert.NoError(t, err)

	inactive := false
	_, err = f.service.Update(ctx, link.ID, UpdateInput{IsActive: &inactive}, 2, false)
	assert.True(t, store.IsUnauthorized(err))

	err = f.service.Delete(ctx, link.ID, 2, false)
	assert.True(t, store.IsUnauthorized(err))

	// 列表只能看自己的，除非管理员
	_, err = f.service.ListForOwner(1, 2, false)
	assert.True(t, store.IsUnauthorized(err))
	links, err := f.service.ListForOwner(1, 99, true)
	assert.NoError(t, err)
	assert.Len(t, links, 1)
}

// 详情里的事件条数来自明细表，与热路径的累计计数互相印证
func TestLinkService_GetDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/d", CustomCode: "det001", OwnerID: ownerPtr(5)})
	assert.NoError(t, err)

	_, ok := f.resolver.Resolve(ctx, "det001", resolver.RequestMeta{})
	assert.True(t, ok)
	f.recorder.Stop()

	got, recorded, err := f.service.Get(link.ID, 5, false)
	assert.NoError(t, err)
	assert.Equal(t, "det001", got.ShortCode)
	assert.Equal(t, int64(1), recorded)

	// 非所有者拿到的错误与不存在同口径
	_, _, err = f.service.Get(link.ID, 6, false)
	assert.True(t, store.IsUnauthorized(err))
}

func TestLinkService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/1", CustomCode: "sta001", OwnerID: ownerPtr(3)})
	assert.NoError(t, err)
	_, err = f.service.Create(ctx, CreateInput{OriginalURL: "https://example.com/2", CustomCode: "sta002", OwnerID: ownerPtr(3)})
	assert.NoError(t, err)

	// 非管理员不能看别人的统计
	_, err = f.service.Stats(ownerPtr(3), 4, false)
	assert.True(t, store.IsUnauthorized(err))

	stats, err := f.service.Stats(ownerPtr(3), 3, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalLinks)
	assert.Equal(t, int64(2), stats.ActiveLinks)

	// 管理员看全局
	global, err := f.service.Stats(nil, 99, true)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), global.TotalLinks)
}
