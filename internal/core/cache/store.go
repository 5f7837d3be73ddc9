package cache

import (
	"fmt"

	"skin-recommender/internal/core/recommendation"
	"skin-recommender/internal/infrastructure/config"
)

// Store 推薦快取實作，同時回報統計
type Store interface {
	recommendation.Store
	recommendation.StatsReporter
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*GormStore)(nil)
)

// New 依設定的後端創建快取
func New(cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return NewMemoryStore(cfg), nil
	case config.BackendRedis:
		s, err := NewRedisStore(&cfg.Cache)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendGorm:
		s, err := NewGormStore(&cfg.Cache)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}
