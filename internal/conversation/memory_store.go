package conversation

import (
	"context"
	"sync"
)

// MemoryStore 以内存方式保存会话历史，用于测试与本地开发。
type MemoryStore struct {
	mu       sync.RWMutex
	maxDepth int
	messages map[string][]Message
}

// NewMemoryStore 创建 MemoryStore。maxDepth 不合法时使用 DefaultMaxDepth。
func NewMemoryStore(maxDepth int) *MemoryStore {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &MemoryStore{
		maxDepth: maxDepth,
		messages: make(map[string][]Message),
	}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, userID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.messages[userID], msg)
	// 每轮往返两条消息
	if limit := m.maxDepth * 2; len(history) > limit {
		history = history[len(history)-limit:]
	}
	m.messages[userID] = history
	return nil
}

// History 实现 Store 接口。
func (m *MemoryStore) History(_ context.Context, userID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.messages[userID]...), nil
}

// Clear 实现 Store 接口。
func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, userID)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
