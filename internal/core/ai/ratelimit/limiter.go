package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 外部搜尋呼叫的節流器，保證相鄰兩次呼叫間隔至少 minDelay
type Limiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	acquired int64
}

// NewLimiter 創建新的節流器
func NewLimiter(minDelay time.Duration) *Limiter {
	if minDelay <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		minDelay: minDelay,
	}
}

// AcquireSlot 等待下一個可用的呼叫時段
func (l *Limiter) AcquireSlot(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("acquire search slot: %w", err)
	}
	atomic.AddInt64(&l.acquired, 1)
	return nil
}

// MinDelay 返回最小呼叫間隔
func (l *Limiter) MinDelay() time.Duration {
	return l.minDelay
}

// Acquired 返回已取得的時段數
func (l *Limiter) Acquired() int64 {
	return atomic.LoadInt64(&l.acquired)
}
