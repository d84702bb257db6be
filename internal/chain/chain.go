package chain

import (
	"context"
	"strings"

	xerrors "InjAgent-Chain/internal/errors"
)

// Network 标识客户端连接的网络环境。
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// ParseNetwork 解析网络名。空串按 mainnet 处理。
func ParseNetwork(raw string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(NetworkMainnet):
		return NetworkMainnet, nil
	case string(NetworkTestnet):
		return NetworkTestnet, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, "unknown network: "+raw)
	}
}

// SentinelUnknownDenom 是查询结果中未上线代币的占位值。
// 上层按需要决定展示方式。
const SentinelUnknownDenom = "token not on mainnet"

const (
	CodeChainTimeout xerrors.Code = "CHAIN_TIMEOUT"
	CodeChainFailure xerrors.Code = "CHAIN_OPERATION_FAILED"
)

var (
	// ErrChainTimeout 表示链上操作超时。转账超时意味着结果未知，
	// 调用方不得自动重发。
	ErrChainTimeout = xerrors.New(CodeChainTimeout, "chain operation timed out")
	// ErrChainFailure 表示链上操作失败。
	ErrChainFailure = xerrors.New(CodeChainFailure, "chain operation failed")
)

func init() {
	xerrors.Register(CodeChainTimeout, xerrors.Attributes{
		Message:   "chain operation timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeChainFailure, xerrors.Attributes{
		Message:   "chain operation failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// Receipt 是一次转账提交后的回执。只携带交易哈希，
// 不等待链上确认。
type Receipt struct {
	TxHash string `json:"tx_hash"`
}

// Client 是绑定到单个账户与网络的链访问接口。
// 实现持有签名私钥，因此实例不得跨用户共享。
type Client interface {
	// Address 返回签名账户的地址。
	Address() string

	// QueryBalances 查询指定代币的余额。未上线的代币以
	// SentinelUnknownDenom 作为取值返回，不视为错误。
	QueryBalances(ctx context.Context, denoms []string) (map[string]string, error)

	// Transfer 把指定数量的代币转给目标地址，返回交易哈希。
	Transfer(ctx context.Context, to, amount, denom string) (Receipt, error)

	// Close 释放底层连接。
	Close()
}

// Factory 按用户私钥与网络构造链客户端。私钥是去掉 0x 前缀的
// 十六进制串，工厂实现不得记录或外传。
type Factory func(ctx context.Context, privateKeyHex string, network Network) (Client, error)
