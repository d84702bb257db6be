package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind 标识一类业务事件。
type Kind string

const (
	KindWalletCreated    Kind = "wallet.created"
	KindWalletAdded      Kind = "wallet.added"
	KindFundsTransferred Kind = "funds.transferred"
)

// Event 是对外广播的业务事件。Payload 只允许公开字段，
// 永远不携带私钥明文或密文。
type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	UserID    string            `json:"user_id"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// NewEvent 构造一个带唯一 ID 与时间戳的事件。
func NewEvent(kind Kind, userID string, payload map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: time.Now().Unix(),
	}
}

// Publisher 把业务事件投递到下游。投递失败不应阻断主流程，
// 调用方记录日志后继续。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// MemoryPublisher 把事件保存在内存里，用于测试与本地开发。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

// Events 返回已投递事件的副本。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close 对内存实现无需操作。
func (p *MemoryPublisher) Close() error {
	return nil
}

var _ Publisher = (*MemoryPublisher)(nil)
