package wallet

import (
	"context"
)

// Store 是钱包记录的持久化接口。实现必须保证：
//
//   - user_id、current_address 以及所有子钱包地址全库唯一；
//   - 同一用户的写操作（AppendItem、SetCurrentAddress）彼此串行，
//     并发竞争的败者以 ErrDuplicateName/ErrAddressConflict 失败，
//     而不是悄悄破坏条目列表；
//   - 读操作返回的记录是副本，调用方修改不会影响存储内容。
type Store interface {
	// Insert 创建一个新用户的钱包记录。
	// 用户已存在返回 ErrDuplicateUser，地址冲突返回 ErrAddressConflict。
	Insert(ctx context.Context, record *Record) error

	// AppendItem 向已有用户追加一个子钱包。
	// 用户不存在返回 ErrUserNotFound，名称重复返回 ErrDuplicateName，
	// 地址冲突返回 ErrAddressConflict。
	AppendItem(ctx context.Context, userID string, item Item) error

	// Get 返回用户的完整钱包记录，不存在返回 ErrUserNotFound。
	Get(ctx context.Context, userID string) (*Record, error)

	// Exists 报告用户是否已有钱包记录。"不存在"是合法的 false，
	// 只有存储层故障才返回 error。
	Exists(ctx context.Context, userID string) (bool, error)

	// SetCurrentAddress 把用户的活跃地址切换到其名下的某个子钱包地址。
	// 地址不属于该用户返回 ErrItemNotFound。
	SetCurrentAddress(ctx context.Context, userID, address string) error

	// Delete 删除用户的整条钱包记录及其全部子钱包。
	Delete(ctx context.Context, userID string) error

	// Close 释放底层资源。
	Close() error
}
