package provider

import (
	"context"
	"time"
)

// Message 表示與搜尋模型的對話消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 表示發送到搜尋提供者的請求
type Request struct {
	Query     string // 使用者查詢
	Directive string // 系統指令
}

// Messages 依系統指令與查詢組出對話消息
func (r *Request) Messages() []Message {
	messages := make([]Message, 0, 2)
	if r.Directive != "" {
		messages = append(messages, Message{Role: "system", Content: r.Directive})
	}
	return append(messages, Message{Role: "user", Content: r.Query})
}

// Result 表示搜尋提供者的回應，失敗時為空結果
type Result struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}

// Empty 判斷結果是否沒有任何內容
func (r *Result) Empty() bool {
	return r == nil || r.Text == ""
}

// Searcher 定義生成式搜尋提供者介面
type Searcher interface {
	// Search 執行搜尋；重試耗盡時返回空結果而非錯誤
	Search(ctx context.Context, req *Request) (*Result, error)

	// GetModel 獲取當前使用的模型名稱
	GetModel() string
}

// Config 定義搜尋提供者配置
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}
