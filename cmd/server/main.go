package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"shortlink-engine/internal/bot"
	"shortlink-engine/internal/cache"
	"shortlink-engine/internal/clicks"
	"shortlink-engine/internal/config"
	"shortlink-engine/internal/handler"
	"shortlink-engine/internal/middleware"
	"shortlink-engine/internal/model"
	"shortlink-engine/internal/resolver"
	"shortlink-engine/internal/service"
	"shortlink-engine/internal/shortcode"
	"shortlink-engine/internal/store"
	"shortlink-engine/pkg/database"
	auth "shortlink-engine/pkg/jwt"
	"shortlink-engine/pkg/logger"
	redisPkg "shortlink-engine/pkg/redis"

	_ "shortlink-engine/docs"

	"github.com/gin-gonic/gin"
	redisClient "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title ShortLink Engine API
// @version 1.0
// @description 短码重定向与点击记账引擎
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Println("配置加载失败:", err)
		return
	}

	logger.InitLogger(cfg.App.Mode)
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := logger.Sugar

	db, err := database.InitMySQL(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("✅ 数据库连接成功")

	var rdb *redisClient.Client
	if cfg.Cache.Host != "" {
		rdb, err = redisPkg.NewClient(&redisPkg.Options{
			Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
		})
		if err != nil {
			sugaredLogger.Warnf("缓存连接失败: %v", err)
			rdb = nil
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
				}
			}()
			sugaredLogger.Info("✅ 缓存连接成功")
		}
	}

	// Redis 不可用时退回进程内缓存，解析热路径始终有缓存兜着
	var resolutionCache cache.ResolutionCache
	if rdb != nil {
		resolutionCache = cache.NewRedisCache(rdb, sugaredLogger)
	} else {
		memCache := cache.NewMemoryCache()
		defer memCache.Stop()
		resolutionCache = memCache
		sugaredLogger.Info("使用进程内解析缓存")
	}

	shortcodeGenerator := shortcode.NewGenerator(db, sugaredLogger)
	shortcodeGenerator.Start()
	defer shortcodeGenerator.Stop()
	sugaredLogger.Info("✅ 短码生成器已启动")

	linkStore := store.NewLinkStore(db, sugaredLogger)
	clickStore := store.NewClickStore(db, sugaredLogger)
	pairingStore := store.NewPairingStore(db, sugaredLogger)

	clickRecorder := clicks.NewRecorder(linkStore, clickStore, cfg.Clicks.QueueSize, cfg.Clicks.Workers, sugaredLogger)
	clickRecorder.Start()
	defer clickRecorder.Stop()
	sugaredLogger.Info("✅ 点击记录器已启动")

	linkResolver := resolver.New(
		linkStore, resolutionCache, clickRecorder,
		time.Duration(cfg.Resolver.PositiveTTLSeconds)*time.Second,
		time.Duration(cfg.Resolver.NegativeTTLSeconds)*time.Second,
		sugaredLogger,
	)

	linkService := service.NewLinkService(linkStore, clickStore, shortcodeGenerator, resolutionCache, sugaredLogger)
	pairingService := service.NewPairingService(pairingStore, time.Duration(cfg.Telegram.PairingTTLMinutes)*time.Minute, sugaredLogger)

	tokenManager := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
	sugaredLogger.Info("✅ 认证管理器初始化成功")

	if err := createAdminUser(db); err != nil {
		sugaredLogger.Errorf("创建管理员失败: %v", err)
	}

	var dispatcher *bot.Dispatcher
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		client := bot.NewTelegramClient(cfg.Telegram.Token, sugaredLogger)
		dispatcher = bot.NewDispatcher(linkService, pairingService, client, cfg.App.BaseURL, sugaredLogger)
		sugaredLogger.Info("✅ Telegram 机器人已启用")
	}

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authMiddleware := middleware.AuthMiddleware(tokenManager)
	optionalAuthMiddleware := middleware.OptionalAuthMiddleware(tokenManager)
	adminMiddleware := middleware.AdminMiddleware()
	router.Use(middleware.RateLimit(rdb, &cfg.RateLimit))

	linkHandler := handler.NewLinkHandler(linkService, linkResolver, cfg.App.BaseURL)
	authHandler := handler.NewAuthHandler(db, tokenManager)
	telegramHandler := handler.NewTelegramHandler(pairingService, dispatcher, cfg.Telegram.WebhookSecret)

	registerRoutes(router, linkHandler, authHandler, telegramHandler, authMiddleware, optionalAuthMiddleware, adminMiddleware, dispatcher != nil)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	sugaredLogger.Infof("🚀 服务启动成功, 监听端口 %d", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugaredLogger.Fatalf("服务启动失败: %v", err)
	}
}

func registerRoutes(
	router *gin.Engine,
	linkHandler *handler.LinkHandler,
	authHandler *handler.AuthHandler,
	telegramHandler *handler.TelegramHandler,
	authMiddleware, optionalAuthMiddleware, adminMiddleware gin.HandlerFunc,
	telegramEnabled bool,
) {
	router.GET("/health", linkHandler.HealthCheck)
	// 重定向热路径：无认证、无额外中间件
	router.GET("/:code", linkHandler.RedirectToOriginal)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// 创建允许匿名，带令牌则归属到请求者名下
	router.POST("/api/shorten", optionalAuthMiddleware, linkHandler.CreateShortLink)

	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		api.GET("/me", authHandler.GetCurrentUser)
		api.GET("/links", linkHandler.GetLinks)
		api.GET("/links/:id", linkHandler.GetLink)
		api.PUT("/links/:id", linkHandler.UpdateLink)
		api.DELETE("/links/:id", linkHandler.DeleteLink)
		api.GET("/stats", linkHandler.GetStats)
		api.POST("/telegram/pairing-code", telegramHandler.IssuePairingCode)

		// 管理员专属的全局视图
		admin := api.Group("/admin")
		admin.Use(adminMiddleware)
		{
			admin.GET("/links", linkHandler.GetAllLinks)
			admin.GET("/stats", linkHandler.GetGlobalStats)
		}
	}

	if telegramEnabled {
		router.POST("/telegram/webhook/:secret", telegramHandler.Webhook)
	}
}

func createAdminUser(db *gorm.DB) error {
	var existing model.User
	if err := db.Where("username = ?", "admin").First(&existing).Error; err == nil {
		return nil
	}

	admin := model.User{Username: "admin", Email: "admin@shortlink.local", Role: "admin", IsActive: true}
	if err := admin.SetPassword("admin"); err != nil {
		return err
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	zap.S().Infow("✅ 默认管理员创建成功", "username", "admin")
	return nil
}
