package wallet

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "InjAgent-Chain/internal/errors"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 持久化钱包记录。
// 唯一性依赖库表的唯一索引，同一用户的写操作通过行锁串行化。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore 并初始化库表。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行钱包库迁移失败")
	}
	return store, nil
}

// Insert 实现 Store 接口。整条记录在一个事务内落库。
func (s *MySQLStore) Insert(ctx context.Context, record *Record) error {
	if record == nil || strings.TrimSpace(record.UserID) == "" {
		return ErrCreationFailed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	const insertWallet = `INSERT INTO wallets (user_id, current_address, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertWallet, record.UserID, nullableAddress(record.CurrentAddress), now, now); err != nil {
		return translateDuplicate(err, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入钱包记录失败"))
	}

	const insertItem = `INSERT INTO wallet_items
        (user_id, wallet_name, address, secondary_address, encrypted_key, position, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	for position, item := range record.Items {
		if _, err := tx.ExecContext(ctx, insertItem,
			record.UserID,
			item.Name,
			item.Address,
			item.SecondaryAddress,
			item.EncryptedKey,
			position,
			now,
		); err != nil {
			return translateDuplicate(err, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入子钱包失败"))
		}
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交钱包记录失败")
	}
	return nil
}

// AppendItem 实现 Store 接口。先对用户行加锁再追加，
// 保证同一用户的并发写入逐个落库。
func (s *MySQLStore) AppendItem(ctx context.Context, userID string, item Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM wallets WHERE user_id = ? FOR UPDATE`, userID).Scan(&locked); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定钱包记录失败")
	}

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_items WHERE user_id = ?`, userID).Scan(&position); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计子钱包数量失败")
	}

	now := time.Now().Unix()
	const insertItem = `INSERT INTO wallet_items
        (user_id, wallet_name, address, secondary_address, encrypted_key, position, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertItem,
		userID,
		item.Name,
		item.Address,
		item.SecondaryAddress,
		item.EncryptedKey,
		position,
		now,
	); err != nil {
		return translateDuplicate(err, xerrors.Wrap(xerrors.CodeStorageFailure, err, "追加子钱包失败"))
	}

	if _, err := tx.ExecContext(ctx, `UPDATE wallets SET updated_at = ? WHERE user_id = ?`, now, userID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新钱包时间戳失败")
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交子钱包失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, userID string) (*Record, error) {
	record := &Record{UserID: userID}

	var current sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT current_address FROM wallets WHERE user_id = ?`, userID,
	).Scan(&current); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包记录失败")
	}
	record.CurrentAddress = current.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet_name, address, secondary_address, encrypted_key
         FROM wallet_items WHERE user_id = ? ORDER BY position ASC, id ASC`, userID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询子钱包失败")
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Name, &item.Address, &item.SecondaryAddress, &item.EncryptedKey); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析子钱包记录失败")
		}
		record.Items = append(record.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历子钱包失败")
	}
	return record, nil
}

// Exists 实现 Store 接口。
func (s *MySQLStore) Exists(ctx context.Context, userID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM wallets WHERE user_id = ?`, userID).Scan(&found)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包记录失败")
	}
	return true, nil
}

// SetCurrentAddress 实现 Store 接口。
func (s *MySQLStore) SetCurrentAddress(ctx context.Context, userID, address string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM wallets WHERE user_id = ? FOR UPDATE`, userID).Scan(&locked); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定钱包记录失败")
	}

	var owned int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallet_items WHERE user_id = ? AND address = ?`, userID, address,
	).Scan(&owned); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "校验子钱包归属失败")
	}
	if owned == 0 {
		return ErrItemNotFound
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET current_address = ?, updated_at = ? WHERE user_id = ?`, address, now, userID,
	); err != nil {
		return translateDuplicate(err, xerrors.Wrap(xerrors.CodeStorageFailure, err, "切换活跃地址失败"))
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交活跃地址失败")
	}
	return nil
}

// Delete 实现 Store 接口。
func (s *MySQLStore) Delete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM wallets WHERE user_id = ?`, userID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除钱包记录失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_items WHERE user_id = ?`, userID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除子钱包失败")
	}

	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交删除失败")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nullableAddress 把空地址映射为 NULL。唯一索引允许多个 NULL，
// 多个用户可以同时处于无活跃地址的状态。
func nullableAddress(address string) any {
	if address == "" {
		return nil
	}
	return address
}

// translateDuplicate 根据被违反的唯一索引把 MySQL 1062 错误
// 映射为领域哨兵错误，其它错误按 fallback 返回。
func translateDuplicate(err error, fallback error) error {
	var mysqlErr *mysql.MySQLError
	if !stdErrors.As(err, &mysqlErr) || mysqlErr.Number != 1062 {
		return fallback
	}
	message := mysqlErr.Message
	switch {
	case strings.Contains(message, "uniq_item_name"):
		return ErrDuplicateName
	case strings.Contains(message, "uniq_item_address"),
		strings.Contains(message, "uniq_item_secondary"),
		strings.Contains(message, "uniq_wallet_current_address"):
		return ErrAddressConflict
	case strings.Contains(message, "PRIMARY"):
		return ErrDuplicateUser
	default:
		return fallback
	}
}

var _ Store = (*MySQLStore)(nil)
