package keycipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	xerrors "InjAgent-Chain/internal/errors"
)

// keySize 是 AES-256 要求的密钥长度。
const keySize = 32

const (
	CodeMalformedCiphertext xerrors.Code = "MALFORMED_CIPHERTEXT"
	CodeInvalidPadding      xerrors.Code = "INVALID_PADDING"
)

var (
	// ErrMalformedCiphertext 表示密文不符合 "ivHex:cipherHex" 的存储格式。
	ErrMalformedCiphertext = xerrors.New(CodeMalformedCiphertext, "malformed ciphertext")
	// ErrInvalidPadding 表示解密后的 PKCS#7 填充不合法。
	ErrInvalidPadding = xerrors.New(CodeInvalidPadding, "invalid padding")
)

func init() {
	xerrors.Register(CodeMalformedCiphertext, xerrors.Attributes{
		Message:   "malformed ciphertext",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidPadding, xerrors.Attributes{
		Message:   "invalid padding",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// Cipher 负责私钥落盘前的对称加解密。密钥在构造时固定，之后只读，
// 可以被多个请求并发使用。
//
// 该方案是 AES-256-CBC + PKCS#7，没有完整性校验（无 GCM/HMAC）。
// 篡改密文只能部分被填充检查发现，迁移到带认证的格式前必须保持
// 与既有密文的解密兼容。
type Cipher struct {
	key []byte
}

// New 根据口令构造 Cipher。口令不足 32 字节时在右侧补 ASCII '0'，
// 超过 32 字节时截断。这是与既有密文兼容的固定约定，不是 KDF。
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "encryption passphrase cannot be empty")
	}
	return &Cipher{key: normalizeKey(passphrase)}, nil
}

// normalizeKey 把口令调整为恰好 32 字节。
func normalizeKey(passphrase string) []byte {
	key := []byte(passphrase)
	if len(key) >= keySize {
		return key[:keySize]
	}
	padded := make([]byte, keySize)
	copy(padded, key)
	for i := len(key); i < keySize; i++ {
		padded[i] = '0'
	}
	return padded
}

// Encrypt 加密明文并返回 "ivHex:cipherHex"。IV 每次调用都重新随机生成。
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "initialize cipher")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "generate iv")
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt 解析 "ivHex:cipherHex" 并还原明文。
// 格式问题返回 ErrMalformedCiphertext，填充问题返回 ErrInvalidPadding。
func (c *Cipher) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(iv) != aes.BlockSize {
		return "", ErrMalformedCiphertext
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "initialize cipher")
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// pkcs7Pad 将数据填充到块长度的整数倍。
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad 校验并剥离 PKCS#7 填充。最后一个字节给出填充长度，
// 超过块长度即视为非法。这只是一次健全性检查，不是 MAC。
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-padLen], nil
}
