package conversation

import (
	"context"
	"time"
)

// DefaultMaxDepth 是会话历史保留的最大往返轮数。
const DefaultMaxDepth = 5

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message 是会话历史中的一条消息。
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 保存每个用户的会话历史，超出深度上限的旧消息被丢弃。
// 历史只用于提示词拼接，不承载审计职责。
type Store interface {
	// Append 追加一条消息并按深度上限裁剪。
	Append(ctx context.Context, userID string, msg Message) error

	// History 返回用户的会话历史，最旧的在前。没有历史返回空切片。
	History(ctx context.Context, userID string) ([]Message, error)

	// Clear 清空用户的会话历史。
	Clear(ctx context.Context, userID string) error

	// Close 释放底层资源。
	Close() error
}
