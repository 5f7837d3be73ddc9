package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"go.uber.org/zap"
)

// capacityFactor 每位使用者保留的條目上限為 max_items_per_user 的倍數
const capacityFactor = 4

// MemoryStore 記憶體快取，單一行程使用
type MemoryStore struct {
	config       *config.Config
	mu           sync.RWMutex
	entries      map[string][]recommendation.CacheEntry
	interactions map[string][]recommendation.Interaction
	capacity     int
	stats        memoryStats
	done         chan struct{}
	closeOnce    sync.Once
}

// memoryStats 快取統計
type memoryStats struct {
	hits      int64
	misses    int64
	inserts   int64
	evictions int64
	expired   int64
}

// NewMemoryStore 創建記憶體快取並啟動過期清理
func NewMemoryStore(cfg *config.Config) *MemoryStore {
	m := &MemoryStore{
		config:       cfg,
		entries:      make(map[string][]recommendation.CacheEntry),
		interactions: make(map[string][]recommendation.Interaction),
		capacity:     cfg.Cache.MaxItemsPerUser * capacityFactor,
		done:         make(chan struct{}),
	}

	if cfg.Cache.CleanupInterval > 0 {
		go m.startCleanup(cfg.Cache.CleanupInterval)
	}

	common.LogInfo("記憶體快取已初始化",
		zap.Int("每位使用者容量", m.capacity),
		zap.Duration("存活時間", cfg.Cache.TTL),
		zap.Duration("清理間隔", cfg.Cache.CleanupInterval),
	)

	return m
}

// InsertEntry 寫入快取條目，超過容量時淘汰最舊的瀏覽紀錄
func (m *MemoryStore) InsertEntry(ctx context.Context, entry *recommendation.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.entries[entry.UserID], *entry)
	for m.capacity > 0 && len(list) > m.capacity {
		list = m.evictOldest(list)
	}
	m.entries[entry.UserID] = list
	m.stats.inserts++
	return nil
}

// evictOldest 優先淘汰最舊的非正向條目
func (m *MemoryStore) evictOldest(list []recommendation.CacheEntry) []recommendation.CacheEntry {
	victim := -1
	for i, e := range list {
		if e.InteractionType.Positive() {
			continue
		}
		if victim == -1 || e.CreatedAt.Before(list[victim].CreatedAt) {
			victim = i
		}
	}
	if victim == -1 {
		for i, e := range list {
			if victim == -1 || e.CreatedAt.Before(list[victim].CreatedAt) {
				victim = i
			}
		}
	}

	m.stats.evictions++
	common.LogDebug("快取已淘汰",
		zap.String("user_id", list[victim].UserID),
		zap.String("entry_id", list[victim].ID),
	)
	return append(list[:victim], list[victim+1:]...)
}

// RecentEntries 返回 since 之後建立且類型符合的條目，新到舊
func (m *MemoryStore) RecentEntries(ctx context.Context, userID string, types []recommendation.InteractionType, since time.Time, limit int) ([]recommendation.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []recommendation.CacheEntry
	for _, e := range m.entries[userID] {
		if e.CreatedAt.Before(since) || !recommendation.MatchesType(e.InteractionType, types) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	if len(out) > 0 {
		m.stats.hits++
	} else {
		m.stats.misses++
	}
	return out, nil
}

// PurgeExpired 刪除使用者已過期的條目
func (m *MemoryStore) PurgeExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeUser(userID, now), nil
}

func (m *MemoryStore) purgeUser(userID string, now time.Time) int {
	list := m.entries[userID]
	kept := list[:0]
	for _, e := range list {
		if now.After(e.ExpiresAt) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(list) - len(kept)
	if len(kept) == 0 {
		delete(m.entries, userID)
	} else {
		m.entries[userID] = kept
	}
	m.stats.expired += int64(removed)
	return removed
}

// AppendInteraction 寫入互動紀錄
func (m *MemoryStore) AppendInteraction(ctx context.Context, in *recommendation.Interaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions[in.UserID] = append(m.interactions[in.UserID], *in)
	return nil
}

// Interactions 返回使用者的互動紀錄，依寫入順序
func (m *MemoryStore) Interactions(userID string) []recommendation.Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]recommendation.Interaction(nil), m.interactions[userID]...)
}

// startCleanup 定期清理所有使用者的過期條目
func (m *MemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.cleanup(now)
		}
	}
}

// cleanup 清理過期的條目
func (m *MemoryStore) cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for userID := range m.entries {
		count += m.purgeUser(userID, now)
	}

	if count > 0 {
		common.LogInfo("Cleaned up expired cache entries",
			zap.Int("count", count),
			zap.Int64("total_expired", m.stats.expired),
			zap.Int("users", len(m.entries)),
		)
	}
	return count
}

// GetStats 獲取快取統計信息
func (m *MemoryStore) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := 0
	for _, list := range m.entries {
		size += len(list)
	}
	logged := 0
	for _, list := range m.interactions {
		logged += len(list)
	}

	hitRatio := 0.0
	if total := m.stats.hits + m.stats.misses; total > 0 {
		hitRatio = float64(m.stats.hits) / float64(total)
	}

	return map[string]interface{}{
		"backend":      config.BackendMemory,
		"size":         size,
		"users":        len(m.entries),
		"interactions": logged,
		"hits":         m.stats.hits,
		"misses":       m.stats.misses,
		"inserts":      m.stats.inserts,
		"evictions":    m.stats.evictions,
		"expired":      m.stats.expired,
		"hit_ratio":    hitRatio,
	}
}

// Close 停止清理並清空快取
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()

		m.entries = make(map[string][]recommendation.CacheEntry)
		common.LogInfo("記憶體快取已關閉",
			zap.Int64("命中次數", m.stats.hits),
			zap.Int64("未命中次數", m.stats.misses),
			zap.Int64("淘汰次數", m.stats.evictions),
		)
	})
	return nil
}
