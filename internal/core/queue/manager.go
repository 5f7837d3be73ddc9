package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"go.uber.org/zap"
)

// jobTimeout 單筆互動寫入的時限
const jobTimeout = 10 * time.Second

// Tracker 執行互動記錄
type Tracker interface {
	TrackInteraction(ctx context.Context, in *recommendation.Interaction) error
}

// Job 隊列中的互動記錄工作
type Job struct {
	Interaction *recommendation.Interaction
	EnqueuedAt  time.Time
}

// Status 隊列狀態
type Status struct {
	QueueLength    int  `json:"queue_length"`
	ProcessedCount int  `json:"processed_count"`
	FailedCount    int  `json:"failed_count"`
	MaxQueueSize   int  `json:"max_queue_size"`
	Workers        int  `json:"workers"`
	Closed         bool `json:"closed"`
}

// Manager 互動記錄隊列，固定數量的 worker 依序寫入
type Manager struct {
	config    *config.Config
	tracker   Tracker
	queue     chan *Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	started   bool
	processed int64
	failed    int64
}

// NewManager 創建新的隊列管理器
func NewManager(cfg *config.Config, tracker Tracker) *Manager {
	return &Manager{
		config:  cfg,
		tracker: tracker,
		queue:   make(chan *Job, cfg.Queue.MaxSize),
	}
}

// Start 啟動 worker，重複呼叫無效果
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	for i := 0; i < m.config.Queue.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	common.LogInfo("互動隊列已啟動",
		zap.Int("workers", m.config.Queue.Workers),
		zap.Int("max_queue_size", m.config.Queue.MaxSize),
	)
}

// Enqueue 將互動加入隊列並返回互動 ID，不阻塞
func (m *Manager) Enqueue(in *recommendation.Interaction) (string, error) {
	if in.ID == "" {
		in.ID = common.GenerateUUID()
	}
	now := time.Now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", common.ErrQueueClosed
	}

	select {
	case m.queue <- &Job{Interaction: in, EnqueuedAt: now}:
		common.LogDebug("Interaction enqueued",
			zap.String("interaction_id", in.ID),
			zap.Int("queue_length", len(m.queue)),
		)
		return in.ID, nil
	default:
		common.LogWarn("互動隊列已滿",
			zap.String("user_id", in.UserID),
			zap.Int("max_queue_size", m.config.Queue.MaxSize),
		)
		return "", common.ErrQueueFull
	}
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	for job := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		err := m.tracker.TrackInteraction(ctx, job.Interaction)
		cancel()

		if err != nil {
			atomic.AddInt64(&m.failed, 1)
			common.LogError("互動記錄失敗",
				zap.Int("worker", id),
				zap.String("interaction_id", job.Interaction.ID),
				zap.String("user_id", job.Interaction.UserID),
				zap.Error(err),
			)
			continue
		}

		atomic.AddInt64(&m.processed, 1)
		common.LogDebug("Interaction processed",
			zap.Int("worker", id),
			zap.String("interaction_id", job.Interaction.ID),
			zap.Duration("wait", time.Since(job.EnqueuedAt)),
		)
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Status{
		QueueLength:    len(m.queue),
		ProcessedCount: int(atomic.LoadInt64(&m.processed)),
		FailedCount:    int(atomic.LoadInt64(&m.failed)),
		MaxQueueSize:   m.config.Queue.MaxSize,
		Workers:        m.config.Queue.Workers,
		Closed:         m.closed,
	}
}

// Close 停止接收新工作並等待隊列清空，ctx 到期時提前返回
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		common.LogInfo("互動隊列已關閉",
			zap.Int64("processed", atomic.LoadInt64(&m.processed)),
			zap.Int64("failed", atomic.LoadInt64(&m.failed)),
		)
		return nil
	case <-ctx.Done():
		common.LogWarn("互動隊列關閉逾時", zap.Int("remaining", len(m.queue)))
		return ctx.Err()
	}
}
