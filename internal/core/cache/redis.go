package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix = "skin:"
	pingTimeout      = 5 * time.Second
)

// RedisStore 以 Redis 保存快取條目與互動紀錄
//
// 每位使用者使用四個鍵：
//
//	cache:{user}        sorted set，分數為建立時間
//	expiry:{user}       sorted set，分數為過期時間
//	entries:{user}      hash，條目 ID 對應 JSON
//	interactions:{user} list，互動紀錄 JSON，不設過期
type RedisStore struct {
	client *redis.Client
	config *config.CacheConfig
	prefix string
}

// NewRedisStore 創建 Redis 快取並測試連線
func NewRedisStore(cfg *config.CacheConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("Redis 快取已連線",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB),
	)

	return &RedisStore{
		client: client,
		config: cfg,
		prefix: defaultKeyPrefix,
	}, nil
}

func (s *RedisStore) key(kind, userID string) string {
	return s.prefix + kind + ":" + userID
}

// score 以微秒表示時間，float64 可精確保存
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// InsertEntry 寫入快取條目
func (s *RedisStore) InsertEntry(ctx context.Context, entry *recommendation.CacheEntry) error {
	data, err := common.ToJSON(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheKey := s.key("cache", entry.UserID)
	expiryKey := s.key("expiry", entry.UserID)
	entriesKey := s.key("entries", entry.UserID)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, cacheKey, &redis.Z{Score: score(entry.CreatedAt), Member: entry.ID})
		pipe.ZAdd(ctx, expiryKey, &redis.Z{Score: score(entry.ExpiresAt), Member: entry.ID})
		pipe.HSet(ctx, entriesKey, entry.ID, data)
		// 整組鍵在最後一次寫入後一個 TTL 過期
		for _, k := range []string{cacheKey, expiryKey, entriesKey} {
			pipe.Expire(ctx, k, s.config.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// RecentEntries 返回 since 之後建立且類型符合的條目，新到舊
func (s *RedisStore) RecentEntries(ctx context.Context, userID string, types []recommendation.InteractionType, since time.Time, limit int) ([]recommendation.CacheEntry, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, s.key("cache", userID), &redis.ZRangeBy{
		Min: strconv.FormatFloat(score(since), 'f', 0, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, s.key("entries", userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entries: %w", err)
	}

	out := make([]recommendation.CacheEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry recommendation.CacheEntry
		if err := common.ParseJSON(raw, &entry); err != nil {
			common.LogWarn("快取條目解析失敗",
				zap.String("user_id", userID),
				zap.String("entry_id", ids[i]),
				zap.Error(err),
			)
			continue
		}
		if !recommendation.MatchesType(entry.InteractionType, types) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// PurgeExpired 刪除使用者已過期的條目
func (s *RedisStore) PurgeExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	expiryKey := s.key("expiry", userID)

	// 分數嚴格小於 now 才算過期
	ids, err := s.client.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(now), 'f', 0, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get expired entries: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.key("cache", userID), members...)
		pipe.ZRem(ctx, expiryKey, members...)
		pipe.HDel(ctx, s.key("entries", userID), ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return len(ids), nil
}

// AppendInteraction 寫入互動紀錄
func (s *RedisStore) AppendInteraction(ctx context.Context, in *recommendation.Interaction) error {
	data, err := common.ToJSON(in)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("interactions", in.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

// Interactions 返回使用者的互動紀錄，依寫入順序
func (s *RedisStore) Interactions(ctx context.Context, userID string) ([]recommendation.Interaction, error) {
	raws, err := s.client.LRange(ctx, s.key("interactions", userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get interactions: %w", err)
	}

	out := make([]recommendation.Interaction, 0, len(raws))
	for _, raw := range raws {
		var in recommendation.Interaction
		if err := common.ParseJSON(raw, &in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, nil
}

// GetStats 返回連線池統計
func (s *RedisStore) GetStats() map[string]interface{} {
	ps := s.client.PoolStats()
	return map[string]interface{}{
		"backend":     config.BackendRedis,
		"addr":        s.config.RedisAddr,
		"hits":        ps.Hits,
		"misses":      ps.Misses,
		"timeouts":    ps.Timeouts,
		"total_conns": ps.TotalConns,
		"idle_conns":  ps.IdleConns,
	}
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}
