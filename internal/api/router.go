package api

import (
	"context"
	"net/http"
	"time"

	"skin-recommender/internal/api/handlers/health"
	recommendationHandler "skin-recommender/internal/api/handlers/recommendation"
	"skin-recommender/internal/api/middleware"
	"skin-recommender/internal/core/ai/ratelimit"
	"skin-recommender/internal/core/cache"
	"skin-recommender/internal/core/queue"
	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 超時設置，需涵蓋搜尋重試與間隔
	timeoutDuration = 120 * time.Second
	// 請求體大小限制 (1MB)
	maxBodySize = 1 << 20
)

// Dependencies 路由需要的服務
type Dependencies struct {
	Service *recommendation.Service
	Queue   *queue.Manager
	Store   cache.Store
	Limiter *ratelimit.Limiter
	Model   string
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()
	router.HandleMethodNotAllowed = true

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New()) // 自動生成請求 ID

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(maxBodySize))

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	// 設置請求超時
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeoutDuration),
			)
			_, resp := common.ToResponse(common.ErrGatewayTimeout, false)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, resp)
		}
	})

	// 健康檢查路由
	var (
		queueStatus health.QueueStatusProvider
		stats       health.StatsProvider
		limiter     health.SearchLimiter
	)
	if deps.Queue != nil {
		queueStatus = deps.Queue
	}
	if deps.Store != nil {
		stats = deps.Store
	}
	if deps.Limiter != nil {
		limiter = deps.Limiter
	}
	healthHandler := health.NewHandler(cfg, queueStatus, stats, limiter, deps.Model)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	api.Use(middleware.Deduplication(cfg))
	{
		h := recommendationHandler.NewHandler(deps.Service, deps.Queue, cfg.App.Debug)

		recommendationGroup := api.Group("/recommendations")
		{
			recommendationGroup.POST("", h.HandleRecommendations)
			recommendationGroup.POST("/interactions", h.HandleTrackInteraction)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		status, resp := common.ToResponse(common.ErrNotFound, false)
		c.JSON(status, resp)
	})
	router.NoMethod(func(c *gin.Context) {
		status, resp := common.ToResponse(common.ErrMethodNotAllowed, false)
		c.JSON(status, resp)
	})

	common.LogInfo("Router setup completed successfully",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("queue_workers", cfg.Queue.Workers),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router
}
