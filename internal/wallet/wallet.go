package wallet

import (
	xerrors "InjAgent-Chain/internal/errors"
)

// Item 是用户钱包里的一个命名子钱包。
// 私钥只以 "ivHex:cipherHex" 密文形式出现，明文从不落盘。
type Item struct {
	Name             string `json:"wallet_name"`
	Address          string `json:"address"`
	SecondaryAddress string `json:"secondary_address"`
	EncryptedKey     string `json:"encrypted_key"`
}

// Record 是文档存储中一个用户的完整钱包记录。
// user_id、current_address 以及所有 Item 地址在全库范围内唯一，
// Item 顺序即创建顺序。
type Record struct {
	UserID         string `json:"user_id"`
	CurrentAddress string `json:"current_address"`
	Items          []Item `json:"wallets"`
}

// ItemSummary 是对外暴露的子钱包视图，永远不携带密钥材料。
type ItemSummary struct {
	Name             string `json:"wallet_name"`
	Address          string `json:"address"`
	SecondaryAddress string `json:"secondary_address"`
}

// Result 是托管层统一的对外结果：总是带显式的成功标志，
// 失败时附带错误消息，成功时只返回地址等公开字段。
type Result struct {
	OK             bool          `json:"ok"`
	Error          string        `json:"error,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	CurrentAddress string        `json:"current_address,omitempty"`
	NewWallet      *ItemSummary  `json:"new_wallet,omitempty"`
	Wallets        []ItemSummary `json:"wallets,omitempty"`
}

const (
	CodeCreationFailed  xerrors.Code = "WALLET_CREATION_FAILED"
	CodeDuplicateUser   xerrors.Code = "DUPLICATE_USER"
	CodeDuplicateName   xerrors.Code = "DUPLICATE_WALLET_NAME"
	CodeAddressConflict xerrors.Code = "ADDRESS_CONFLICT"
	CodeUserNotFound    xerrors.Code = "USER_NOT_FOUND"
	CodeNoActiveAddress xerrors.Code = "NO_ACTIVE_ADDRESS"
	CodeItemNotFound    xerrors.Code = "WALLET_ITEM_NOT_FOUND"
)

var (
	// ErrCreationFailed 表示地址或私钥生成失败，对当前请求是致命的。
	ErrCreationFailed = xerrors.New(CodeCreationFailed, "wallet creation failed")
	// ErrDuplicateUser 表示该用户已经拥有钱包记录。
	ErrDuplicateUser = xerrors.New(CodeDuplicateUser, "user already has a wallet")
	// ErrDuplicateName 表示同名子钱包已存在于该用户的钱包中。
	ErrDuplicateName = xerrors.New(CodeDuplicateName, "wallet name already exists")
	// ErrAddressConflict 表示派生地址与已存在的地址冲突。
	ErrAddressConflict = xerrors.New(CodeAddressConflict, "wallet address already exists")
	// ErrUserNotFound 表示该用户没有钱包记录。
	ErrUserNotFound = xerrors.New(CodeUserNotFound, "user not found")
	// ErrNoActiveAddress 表示该用户没有设置当前活跃地址。
	ErrNoActiveAddress = xerrors.New(CodeNoActiveAddress, "no active address for user")
	// ErrItemNotFound 表示活跃地址没有对应的子钱包条目。
	ErrItemNotFound = xerrors.New(CodeItemNotFound, "wallet item not found")
)

func init() {
	xerrors.Register(CodeCreationFailed, xerrors.Attributes{
		Message:   "wallet creation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeDuplicateUser, xerrors.Attributes{
		Message:   "user already has a wallet",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeDuplicateName, xerrors.Attributes{
		Message:   "wallet name already exists",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAddressConflict, xerrors.Attributes{
		Message:   "wallet address already exists",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeUserNotFound, xerrors.Attributes{
		Message:   "user not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeNoActiveAddress, xerrors.Attributes{
		Message:   "no active address for user",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeItemNotFound, xerrors.Attributes{
		Message:   "wallet item not found",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// Summaries 把内部记录转换为对外视图。
func Summaries(items []Item) []ItemSummary {
	out := make([]ItemSummary, 0, len(items))
	for _, item := range items {
		out = append(out, ItemSummary{
			Name:             item.Name,
			Address:          item.Address,
			SecondaryAddress: item.SecondaryAddress,
		})
	}
	return out
}

func cloneRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	clone := *record
	clone.Items = append([]Item(nil), record.Items...)
	return &clone
}
