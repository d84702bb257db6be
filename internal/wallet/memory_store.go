package wallet

import (
	"context"
	"sync"
)

// MemoryStore 以内存方式保存钱包记录，主要用于测试与本地开发。
// 唯一性检查与写入在同一把锁内完成，满足 Store 的串行化要求。
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record
	addresses map[string]string // address -> user_id
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		addresses: make(map[string]string),
	}
}

// Insert 实现 Store 接口。
func (m *MemoryStore) Insert(_ context.Context, record *Record) error {
	if record == nil || record.UserID == "" {
		return ErrCreationFailed
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.UserID]; ok {
		return ErrDuplicateUser
	}
	for _, item := range record.Items {
		if _, taken := m.addresses[item.Address]; taken {
			return ErrAddressConflict
		}
		if _, taken := m.addresses[item.SecondaryAddress]; taken {
			return ErrAddressConflict
		}
	}

	clone := cloneRecord(record)
	m.records[record.UserID] = clone
	for _, item := range clone.Items {
		m.addresses[item.Address] = record.UserID
		m.addresses[item.SecondaryAddress] = record.UserID
	}
	return nil
}

// AppendItem 实现 Store 接口。
func (m *MemoryStore) AppendItem(_ context.Context, userID string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return ErrUserNotFound
	}
	for _, existing := range record.Items {
		if existing.Name == item.Name {
			return ErrDuplicateName
		}
	}
	if _, taken := m.addresses[item.Address]; taken {
		return ErrAddressConflict
	}
	if _, taken := m.addresses[item.SecondaryAddress]; taken {
		return ErrAddressConflict
	}

	record.Items = append(record.Items, item)
	m.addresses[item.Address] = userID
	m.addresses[item.SecondaryAddress] = userID
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, userID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneRecord(record), nil
}

// Exists 实现 Store 接口。
func (m *MemoryStore) Exists(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[userID]
	return ok, nil
}

// SetCurrentAddress 实现 Store 接口。
func (m *MemoryStore) SetCurrentAddress(_ context.Context, userID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return ErrUserNotFound
	}
	for _, item := range record.Items {
		if item.Address == address {
			record.CurrentAddress = address
			return nil
		}
	}
	return ErrItemNotFound
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return ErrUserNotFound
	}
	for _, item := range record.Items {
		delete(m.addresses, item.Address)
		delete(m.addresses, item.SecondaryAddress)
	}
	delete(m.records, userID)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
