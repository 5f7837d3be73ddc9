package health

import (
	"net/http"
	"runtime"
	"time"

	"skin-recommender/internal/core/queue"
	"skin-recommender/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
)

// QueueStatusProvider 提供互動隊列狀態
type QueueStatusProvider interface {
	GetQueueStatus() *queue.Status
}

// StatsProvider 提供快取統計
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// SearchLimiter 提供外部搜尋節流狀態
type SearchLimiter interface {
	MinDelay() time.Duration
	Acquired() int64
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Model     string                 `json:"model,omitempty"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Cache     map[string]interface{} `json:"cache,omitempty"`
	Search    map[string]interface{} `json:"search,omitempty"`
}

// Handler 健康檢查處理程序
type Handler struct {
	config  *config.Config
	queue   QueueStatusProvider
	cache   StatsProvider
	limiter SearchLimiter
	model   string
}

// NewHandler 創建健康檢查處理程序，queue、cache 與 limiter 可為 nil
func NewHandler(cfg *config.Config, q QueueStatusProvider, cache StatsProvider, limiter SearchLimiter, model string) *Handler {
	return &Handler{config: cfg, queue: q, cache: cache, limiter: limiter, model: model}
}

// HealthCheck 回報版本、執行期、隊列與快取狀態
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.config.App.Version,
		Model:     h.model,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.queue != nil {
		response.Queue = h.queue.GetQueueStatus()
		if response.Queue.Closed {
			response.Status = "degraded"
		}
	}
	if h.cache != nil {
		response.Cache = h.cache.GetStats()
	}
	if h.limiter != nil {
		response.Search = map[string]interface{}{
			"min_delay": h.limiter.MinDelay().String(),
			"calls":     h.limiter.Acquired(),
		}
	}

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 隊列關閉後不再接受流量
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.queue != nil && h.queue.GetQueueStatus().Closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "shutting_down",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
