package wallet

import (
	"regexp"
	"testing"
)

var (
	primaryPattern   = regexp.MustCompile(`^inj1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{38}$`)
	secondaryPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	keyPattern       = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

func TestGeneratorCreate(t *testing.T) {
	gen := NewGenerator("")

	pair, err := gen.Create()
	if err != nil {
		t.Fatalf("Create 失败: %v", err)
	}
	if !primaryPattern.MatchString(pair.PrimaryAddress) {
		t.Errorf("主地址格式不合法: %q", pair.PrimaryAddress)
	}
	if !secondaryPattern.MatchString(pair.SecondaryAddress) {
		t.Errorf("EVM 地址格式不合法: %q", pair.SecondaryAddress)
	}
	if !keyPattern.MatchString(pair.PrivateKey) {
		t.Errorf("私钥格式不合法")
	}

	other, err := gen.Create()
	if err != nil {
		t.Fatalf("Create 失败: %v", err)
	}
	if other.PrimaryAddress == pair.PrimaryAddress || other.PrivateKey == pair.PrivateKey {
		t.Fatal("两次生成得到了相同的密钥对")
	}
}

func TestDeriveBech32AddressDeterministic(t *testing.T) {
	const hexAddr = "0x1234567890abcdef1234567890abcdef12345678"

	first, err := DeriveBech32Address(hexAddr, "inj")
	if err != nil {
		t.Fatalf("DeriveBech32Address 失败: %v", err)
	}
	second, err := DeriveBech32Address(hexAddr, "inj")
	if err != nil {
		t.Fatalf("DeriveBech32Address 失败: %v", err)
	}
	if first != second {
		t.Fatalf("同一输入派生出不同地址: %q vs %q", first, second)
	}
	if !primaryPattern.MatchString(first) {
		t.Fatalf("派生地址格式不合法: %q", first)
	}

	// 0x 前缀可选
	bare, err := DeriveBech32Address("1234567890abcdef1234567890abcdef12345678", "inj")
	if err != nil {
		t.Fatalf("DeriveBech32Address 失败: %v", err)
	}
	if bare != first {
		t.Fatalf("去前缀输入派生出不同地址: %q vs %q", bare, first)
	}

	if _, err := DeriveBech32Address("not-hex", "inj"); err == nil {
		t.Fatal("非法十六进制输入没有报错")
	}
}

// 重新计算校验和，确认编码结果是合法的 bech32 串。
func TestDeriveBech32AddressChecksum(t *testing.T) {
	addr, err := DeriveBech32Address("0x1234567890abcdef1234567890abcdef12345678", "inj")
	if err != nil {
		t.Fatalf("DeriveBech32Address 失败: %v", err)
	}

	data := make([]byte, 0, len(addr)-4)
	for _, ch := range addr[4:] {
		idx := -1
		for i := 0; i < len(bech32Charset); i++ {
			if bech32Charset[i] == byte(ch) {
				idx = i
				break
			}
		}
		if idx < 0 {
			t.Fatalf("地址包含非法字符 %q", ch)
		}
		data = append(data, byte(idx))
	}

	values := append(bech32HRPExpand("inj"), data...)
	if bech32Polymod(values) != 1 {
		t.Fatal("bech32 校验和不合法")
	}
}

func TestConvertBitsRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x12, 0x34, 0x56}

	grouped, err := convertBits(raw, 8, 5, true)
	if err != nil {
		t.Fatalf("convertBits 8→5 失败: %v", err)
	}
	back, err := convertBits(grouped, 5, 8, false)
	if err != nil {
		t.Fatalf("convertBits 5→8 失败: %v", err)
	}
	if string(back) != string(raw) {
		t.Fatalf("往返转换不一致: %x vs %x", back, raw)
	}
}
