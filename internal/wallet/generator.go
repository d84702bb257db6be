package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	xerrors "InjAgent-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultAddressPrefix 是主地址使用的 bech32 人类可读前缀。
const DefaultAddressPrefix = "inj"

// Keypair 是一次生成得到的密钥对及两种地址表示。
// PrivateKey 携带 "0x" 前缀，仅在创建链路内短暂存在。
type Keypair struct {
	PrimaryAddress   string
	SecondaryAddress string
	PrivateKey       string
}

// Generator 生成链上钱包密钥对。测试可以用桩实现替换。
type Generator interface {
	Create() (Keypair, error)
}

// SecpGenerator 从密码学安全的随机源生成 secp256k1 密钥对，
// 并派生 EVM 地址与 bech32 主地址。
type SecpGenerator struct {
	prefix string
}

// NewGenerator 构造 SecpGenerator。prefix 为空时使用 DefaultAddressPrefix。
func NewGenerator(prefix string) *SecpGenerator {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultAddressPrefix
	}
	return &SecpGenerator{prefix: prefix}
}

// Create 生成 32 字节随机私钥并派生两种地址。
// 生成结果任何一项为空都视为致命错误，调用方不应自动重试。
func (g *SecpGenerator) Create() (Keypair, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return Keypair{}, xerrors.Wrap(CodeCreationFailed, err, "generate private key")
	}

	privateKey, err := crypto.ToECDSA(seed)
	if err != nil {
		return Keypair{}, xerrors.Wrap(CodeCreationFailed, err, "derive secp256k1 key")
	}

	secondary := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	primary, err := DeriveBech32Address(secondary, g.prefix)
	if err != nil {
		return Keypair{}, xerrors.Wrap(CodeCreationFailed, err, "derive bech32 address")
	}

	pair := Keypair{
		PrimaryAddress:   primary,
		SecondaryAddress: secondary,
		PrivateKey:       "0x" + hex.EncodeToString(seed),
	}
	if pair.PrimaryAddress == "" || pair.SecondaryAddress == "" || pair.PrivateKey == "0x" {
		return Keypair{}, ErrCreationFailed
	}
	return pair, nil
}

// DeriveBech32Address 把十六进制地址转换为 bech32 主地址：
// 去掉可选的 0x 前缀，按原始字节做 8→5 bit 重组后编码。
func DeriveBech32Address(hexAddress, prefix string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(hexAddress, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode hex address")
	}
	grouped, err := convertBits(raw, 8, 5, true)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "regroup address bytes")
	}
	return bech32Encode(prefix, grouped)
}
