package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skin-recommender/internal/api"
	"skin-recommender/internal/core/ai/perplexity"
	"skin-recommender/internal/core/ai/provider"
	"skin-recommender/internal/core/ai/ratelimit"
	"skin-recommender/internal/core/cache"
	"skin-recommender/internal/core/queue"
	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 關閉超時
const shutdownTimeout = 15 * time.Second

func main() {
	// 載入設定（內含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("masked_api_key", config.MaskAPIKey(cfg.Search.APIKey)),
		zap.String("search_model", cfg.Search.Model),
		zap.String("cache_backend", cfg.Cache.Backend),
	)
	if cfg.Search.APIKey == "" {
		common.LogWarn("Search API key is empty, recommendations will use the fallback catalog")
	}

	// 初始化快取
	store, err := cache.New(cfg)
	if err != nil {
		common.LogFatal("Failed to initialize cache store", zap.Error(err))
	}

	// 初始化搜尋客戶端，所有請求共用同一個限流器
	limiter := ratelimit.NewLimiter(cfg.Search.MinDelay)
	client := perplexity.NewClient(provider.Config{
		APIKey:      cfg.Search.APIKey,
		BaseURL:     cfg.Search.BaseURL,
		Model:       cfg.Search.Model,
		MaxTokens:   cfg.Search.MaxTokens,
		Temperature: cfg.Search.Temperature,
		Timeout:     cfg.Search.Timeout,
		MaxAttempts: cfg.Search.MaxAttempts,
		BackoffBase: cfg.Search.BackoffBase,
	}, limiter)

	service := recommendation.NewService(cfg, client, store)

	interactions := queue.NewManager(cfg, service)
	interactions.Start()

	router := api.SetupRouter(cfg, api.Dependencies{
		Service: service,
		Queue:   interactions,
		Store:   store,
		Limiter: limiter,
		Model:   client.GetModel(),
	})

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		common.LogInfo(common.MsgServerStarting,
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		common.LogInfo(common.MsgShuttingDown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		// 等待已排隊的互動寫入完成
		if err := interactions.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("queue close: %w", err))
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		common.LogError("Server exited with error", zap.Error(err))
		common.Sync()
		os.Exit(1)
	}

	common.LogInfo(common.MsgServerExited)
}
