package recommendation

import (
	"context"
	"time"
)

// Store 推薦快取與互動紀錄的持久化介面
type Store interface {
	// InsertEntry 寫入快取條目
	InsertEntry(ctx context.Context, entry *CacheEntry) error

	// RecentEntries 返回 since 之後建立、類型符合的條目，新到舊，最多 limit 筆
	RecentEntries(ctx context.Context, userID string, types []InteractionType, since time.Time, limit int) ([]CacheEntry, error)

	// PurgeExpired 刪除使用者已過期的條目，返回刪除筆數
	PurgeExpired(ctx context.Context, userID string, now time.Time) (int, error)

	// AppendInteraction 寫入互動紀錄，不受 TTL 影響
	AppendInteraction(ctx context.Context, interaction *Interaction) error

	// Close 釋放資源
	Close() error
}

// StatsReporter 可回報統計資訊的元件
type StatsReporter interface {
	GetStats() map[string]interface{}
}

// RankingSignal 正向互動的排序訊號擴充點
type RankingSignal interface {
	Record(ctx context.Context, userID string, rec NormalizedRecommendation, interactionType InteractionType) error
}

// NopRankingSignal 預設不做任何事
type NopRankingSignal struct{}

// Record 不做任何事
func (NopRankingSignal) Record(context.Context, string, NormalizedRecommendation, InteractionType) error {
	return nil
}

// MatchesType 判斷互動類型是否在清單中，清單為空時全部符合
func MatchesType(t InteractionType, types []InteractionType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
