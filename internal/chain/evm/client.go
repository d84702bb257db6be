package evm

import (
	"context"
	"crypto/ecdsa"
	stdErrors "errors"
	"math/big"
	"strings"
	"sync"

	"InjAgent-Chain/internal/chain"
	xerrors "InjAgent-Chain/internal/errors"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ERC-20 选择子
var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorTransfer  = []byte{0xa9, 0x05, 0x9c, 0xbb}
)

const (
	gasLimitNative = 21000
	gasLimitToken  = 90000
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name        string
	RPCURL      string
	ChainID     int64
	NativeDenom string
	// Denoms 把代币名映射到 ERC-20 合约地址。
	Denoms map[string]string
	Notes  string
}

// Client implements the chain.Client interface for EVM compatible chains.
// 每个实例绑定一把签名私钥，不得跨用户复用。
type Client struct {
	name        string
	notes       string
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	nativeDenom string
	denoms      map[string]common.Address
	mu          sync.Mutex
}

// NewClient dials the configured RPC endpoint and binds the signing key.
// privateKeyHex 是去掉 0x 前缀的十六进制私钥。
func NewClient(ctx context.Context, cfg Config, privateKeyHex string) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 EVM RPC 地址")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		// 不携带原始错误，避免密钥片段进入日志
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "私钥不是合法的十六进制串")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(chain.CodeChainFailure, err, "连接 EVM 节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID <= 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(chain.CodeChainFailure, err, "获取链 ID 失败")
		}
	}

	denoms := make(map[string]common.Address, len(cfg.Denoms))
	for denom, contract := range cfg.Denoms {
		denoms[strings.ToLower(denom)] = common.HexToAddress(contract)
	}

	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		rpcClient:   rpcClient,
		eth:         eth,
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		nativeDenom: strings.ToLower(cfg.NativeDenom),
		denoms:      denoms,
	}, nil
}

// Address 返回签名账户的地址。
func (c *Client) Address() string {
	return c.address.Hex()
}

// ethClient 在互斥锁保护下读取连接快照。Close 会把 c.eth 置空，
// 所有读路径都必须经过这里，避免与会话轮换时的关闭竞争。
func (c *Client) ethClient() *ethclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eth
}

// QueryBalances 实现 chain.Client 接口。原生代币走账户余额查询，
// 已登记的 ERC-20 走 balanceOf，其余代币返回占位值。
func (c *Client) QueryBalances(ctx context.Context, denoms []string) (map[string]string, error) {
	if c == nil {
		return nil, xerrors.New(chain.CodeChainFailure, "未初始化的 EVM 客户端")
	}
	eth := c.ethClient()
	if eth == nil {
		return nil, xerrors.New(chain.CodeChainFailure, "EVM 客户端已关闭")
	}

	balances := make(map[string]string, len(denoms))
	for _, denom := range denoms {
		normalized := strings.ToLower(strings.TrimSpace(denom))
		switch {
		case normalized == "":
			continue
		case normalized == c.nativeDenom:
			balance, err := eth.BalanceAt(ctx, c.address, nil)
			if err != nil {
				return nil, translateChainError(err, "查询余额失败")
			}
			balances[denom] = balance.String()
		default:
			contract, ok := c.denoms[normalized]
			if !ok {
				balances[denom] = chain.SentinelUnknownDenom
				continue
			}
			balance, err := c.erc20Balance(ctx, eth, contract)
			if err != nil {
				return nil, err
			}
			balances[denom] = balance.String()
		}
	}
	return balances, nil
}

func (c *Client) erc20Balance(ctx context.Context, eth *ethclient.Client, contract common.Address) (*big.Int, error) {
	data := make([]byte, 0, 36)
	data = append(data, selectorBalanceOf...)
	data = append(data, common.LeftPadBytes(c.address.Bytes(), 32)...)

	out, err := eth.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, translateChainError(err, "查询代币余额失败")
	}
	return new(big.Int).SetBytes(out), nil
}

// Transfer 实现 chain.Client 接口。amount 是十进制的最小单位数量。
func (c *Client) Transfer(ctx context.Context, to, amount, denom string) (chain.Receipt, error) {
	if c == nil {
		return chain.Receipt{}, xerrors.New(chain.CodeChainFailure, "未初始化的 EVM 客户端")
	}
	if !common.IsHexAddress(to) {
		return chain.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "目标地址不是合法的十六进制地址")
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || value.Sign() <= 0 {
		return chain.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "转账数量必须是正整数")
	}

	normalized := strings.ToLower(strings.TrimSpace(denom))
	recipient := common.HexToAddress(to)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth == nil {
		return chain.Receipt{}, xerrors.New(chain.CodeChainFailure, "EVM 客户端已关闭")
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return chain.Receipt{}, translateChainError(err, "查询交易计数失败")
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return chain.Receipt{}, translateChainError(err, "查询 gas 价格失败")
	}

	var tx *coretypes.Transaction
	switch {
	case normalized == c.nativeDenom:
		tx = coretypes.NewTx(&coretypes.LegacyTx{
			Nonce:    nonce,
			To:       &recipient,
			Value:    value,
			Gas:      gasLimitNative,
			GasPrice: gasPrice,
		})
	default:
		contract, found := c.denoms[normalized]
		if !found {
			return chain.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, chain.SentinelUnknownDenom)
		}
		data := make([]byte, 0, 68)
		data = append(data, selectorTransfer...)
		data = append(data, common.LeftPadBytes(recipient.Bytes(), 32)...)
		data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
		tx = coretypes.NewTx(&coretypes.LegacyTx{
			Nonce:    nonce,
			To:       &contract,
			Value:    big.NewInt(0),
			Gas:      gasLimitToken,
			GasPrice: gasPrice,
			Data:     data,
		})
	}

	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return chain.Receipt{}, xerrors.Wrap(chain.CodeChainFailure, err, "签名交易失败")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return chain.Receipt{}, translateChainError(err, "广播交易失败")
	}
	return chain.Receipt{TxHash: signed.Hash().Hex()}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.key = nil
}

// translateChainError 把上下文超时映射为链超时错误，其余包一层链失败。
func translateChainError(err error, message string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		return xerrors.Wrap(chain.CodeChainTimeout, err, message)
	}
	return xerrors.Wrap(chain.CodeChainFailure, err, message)
}

var _ chain.Client = (*Client)(nil)
