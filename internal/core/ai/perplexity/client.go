package perplexity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"skin-recommender/internal/core/ai/provider"
	"skin-recommender/internal/core/ai/ratelimit"
	"skin-recommender/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	completionsPath = "/chat/completions"
	defaultBaseURL  = "https://api.perplexity.ai"
)

// Client Perplexity 生成式搜尋客戶端
type Client struct {
	config  provider.Config
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// chatRequest 表示 API 請求
type chatRequest struct {
	Model           string             `json:"model"`
	Messages        []provider.Message `json:"messages"`
	MaxTokens       int                `json:"max_tokens,omitempty"`
	Temperature     float64            `json:"temperature"`
	ReturnCitations bool               `json:"return_citations"`
}

// chatResponse 表示 API 響應
type chatResponse struct {
	Choices []struct {
		Message provider.Message `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// retryableError 可重試的錯誤
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// NewClient 創建新的 Perplexity 客戶端
func NewClient(cfg provider.Config, limiter *ratelimit.Limiter) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(0)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)

	return &Client{
		config:  cfg,
		client:  client,
		limiter: limiter,
	}
}

// GetModel 獲取當前使用的模型名稱
func (c *Client) GetModel() string {
	return c.config.Model
}

// Search 執行搜尋，重試耗盡、非重試錯誤或取消時返回空結果
func (c *Client) Search(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if c.config.APIKey == "" {
		common.LogWarn("未設定搜尋 API Key，略過外部搜尋")
		return &provider.Result{}, nil
	}

	body := chatRequest{
		Model:           c.config.Model,
		Messages:        req.Messages(),
		MaxTokens:       c.config.MaxTokens,
		Temperature:     c.config.Temperature,
		ReturnCitations: true,
	}

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.AcquireSlot(ctx); err != nil {
			common.LogWarn("搜尋請求已取消", zap.Int("attempt", attempt), zap.Error(err))
			return &provider.Result{}, nil
		}

		start := time.Now()
		result, err := c.do(ctx, &body)
		common.LogSearchCall(c.config.Model, attempt, time.Since(start), err)
		if err == nil {
			return result, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) || ctx.Err() != nil {
			return &provider.Result{}, nil
		}

		if attempt < c.config.MaxAttempts {
			if !c.wait(ctx, c.backoff(attempt)) {
				return &provider.Result{}, nil
			}
		}
	}

	common.LogWarn("搜尋重試次數已用盡",
		zap.Int("max_attempts", c.config.MaxAttempts),
		zap.String("model", c.config.Model),
	)
	return &provider.Result{}, nil
}

// do 發送單次請求
func (c *Client) do(ctx context.Context, body *chatRequest) (*provider.Result, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(completionsPath)
	if err != nil {
		// 逾時與連線錯誤皆可重試
		return nil, &retryableError{err: fmt.Errorf("failed to send request: %w", err)}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return nil, &retryableError{err: fmt.Errorf("search API returned status %d", status)}
	case status != http.StatusOK:
		return nil, fmt.Errorf("search API returned status %d: %s", status, truncate(resp.String(), 200))
	}

	var parsed chatResponse
	if err := common.ParseJSONBytes(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	result := &provider.Result{Citations: parsed.Citations}
	if len(parsed.Choices) > 0 {
		result.Text = parsed.Choices[0].Message.Content
	}
	return result, nil
}

// backoff 計算指數退避時間
func (c *Client) backoff(attempt int) time.Duration {
	base := c.config.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	return base * time.Duration(1<<uint(attempt-1))
}

// wait 等待退避時間，context 取消時返回 false
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
