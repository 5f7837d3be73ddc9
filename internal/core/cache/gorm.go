package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
	"skin-recommender/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// cacheEntryRow cache_entries 資料表
type cacheEntryRow struct {
	ID              string         `gorm:"primaryKey;size:64"`
	UserID          string         `gorm:"size:128;not null;index:idx_cache_user_created,priority:1"`
	InteractionType string         `gorm:"size:16;not null"`
	Recommendation  datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_cache_user_created,priority:2"`
	ExpiresAt       time.Time      `gorm:"not null;index"`
}

func (cacheEntryRow) TableName() string { return "cache_entries" }

// interactionLogRow interaction_logs 資料表，不受 TTL 影響
type interactionLogRow struct {
	ID                string         `gorm:"primaryKey;size:64"`
	UserID            string         `gorm:"size:128;not null;index"`
	InteractionType   string         `gorm:"size:16;not null"`
	Product           datatypes.JSON `gorm:"not null"`
	RelatedAnalysisID string         `gorm:"size:128"`
	CreatedAt         time.Time      `gorm:"not null"`
}

func (interactionLogRow) TableName() string { return "interaction_logs" }

// GormStore 以關聯式資料庫保存快取條目與互動紀錄
type GormStore struct {
	db     *gorm.DB
	driver string
}

// NewGormStore 依設定的驅動開啟資料庫並建立資料表
func NewGormStore(cfg *config.CacheConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(&cacheEntryRow{}, &interactionLogRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache tables: %w", err)
	}

	common.LogInfo("資料庫快取已初始化", zap.String("driver", cfg.Driver))
	return &GormStore{db: db, driver: cfg.Driver}, nil
}

// InsertEntry 寫入快取條目
func (s *GormStore) InsertEntry(ctx context.Context, entry *recommendation.CacheEntry) error {
	data, err := json.Marshal(entry.Recommendation)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	row := cacheEntryRow{
		ID:              entry.ID,
		UserID:          entry.UserID,
		InteractionType: string(entry.InteractionType),
		Recommendation:  datatypes.JSON(data),
		CreatedAt:       entry.CreatedAt.UTC(),
		ExpiresAt:       entry.ExpiresAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// RecentEntries 返回 since 之後建立且類型符合的條目，新到舊
func (s *GormStore) RecentEntries(ctx context.Context, userID string, types []recommendation.InteractionType, since time.Time, limit int) ([]recommendation.CacheEntry, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Order("created_at DESC")
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		q = q.Where("interaction_type IN ?", names)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []cacheEntryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}

	out := make([]recommendation.CacheEntry, 0, len(rows))
	for _, row := range rows {
		var rec recommendation.NormalizedRecommendation
		if err := common.ParseJSONBytes(row.Recommendation, &rec); err != nil {
			common.LogWarn("快取條目解析失敗",
				zap.String("user_id", userID),
				zap.String("entry_id", row.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, recommendation.CacheEntry{
			ID:              row.ID,
			UserID:          row.UserID,
			Recommendation:  rec,
			InteractionType: recommendation.InteractionType(row.InteractionType),
			CreatedAt:       row.CreatedAt,
			ExpiresAt:       row.ExpiresAt,
		})
	}
	return out, nil
}

// PurgeExpired 刪除使用者已過期的條目
func (s *GormStore) PurgeExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at < ?", userID, now.UTC()).
		Delete(&cacheEntryRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// AppendInteraction 寫入互動紀錄
func (s *GormStore) AppendInteraction(ctx context.Context, in *recommendation.Interaction) error {
	data, err := json.Marshal(in.Product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	row := interactionLogRow{
		ID:                in.ID,
		UserID:            in.UserID,
		InteractionType:   string(in.Type),
		Product:           datatypes.JSON(data),
		RelatedAnalysisID: in.RelatedAnalysisID,
		CreatedAt:         in.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

// Interactions 返回使用者的互動紀錄，依時間先後
func (s *GormStore) Interactions(ctx context.Context, userID string) ([]recommendation.Interaction, error) {
	var rows []interactionLogRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}

	out := make([]recommendation.Interaction, 0, len(rows))
	for _, row := range rows {
		var product recommendation.NormalizedRecommendation
		if err := common.ParseJSONBytes(row.Product, &product); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product: %w", err)
		}
		out = append(out, recommendation.Interaction{
			ID:                row.ID,
			UserID:            row.UserID,
			Product:           product,
			Type:              recommendation.InteractionType(row.InteractionType),
			RelatedAnalysisID: row.RelatedAnalysisID,
			CreatedAt:         row.CreatedAt,
		})
	}
	return out, nil
}

// GetStats 返回連線池統計
func (s *GormStore) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"backend": config.BackendGorm,
		"driver":  s.driver,
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	dbStats := sqlDB.Stats()
	stats["open_connections"] = dbStats.OpenConnections
	stats["in_use"] = dbStats.InUse
	stats["idle"] = dbStats.Idle
	return stats
}

// Close 關閉資料庫連線
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
