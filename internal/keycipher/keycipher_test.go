package keycipher

import (
	"encoding/hex"
	stdErrors "errors"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New("unit-test-passphrase")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintexts := []string{
		"",
		"short",
		strings.Repeat("a", 15),
		strings.Repeat("b", 16),
		strings.Repeat("c", 17),
		"0x" + strings.Repeat("ab", 32),
		"多字节字符 🔐 private key",
	}

	for _, plaintext := range plaintexts {
		encoded, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}
		decoded, err := c.Decrypt(encoded)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plaintext, err)
		}
		if decoded != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", decoded, plaintext)
		}
	}
}

func TestEncryptOutputFormat(t *testing.T) {
	c := newTestCipher(t)

	encoded, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		t.Fatalf("expected exactly one separator, got %q", encoded)
	}
	if len(parts[0]) != 32 {
		t.Fatalf("expected 32 hex chars of iv, got %d", len(parts[0]))
	}
	if encoded != strings.ToLower(encoded) {
		t.Fatalf("expected lowercase hex, got %q", encoded)
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		t.Fatalf("ciphertext half is not hex: %v", err)
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t)

	cases := []string{
		"not-valid-format",
		"zz:zz",
		"aa:bb:cc",
		"",
		"abcd:" + strings.Repeat("00", 16),               // iv too short
		strings.Repeat("00", 16) + ":" + "0102",          // ciphertext not block aligned
		strings.Repeat("00", 16) + ":",                   // empty ciphertext
		strings.Repeat("0", 31) + "g:" + strings.Repeat("00", 16), // non-hex iv
	}

	for _, input := range cases {
		if _, err := c.Decrypt(input); !stdErrors.Is(err, ErrMalformedCiphertext) {
			t.Fatalf("decrypt %q: expected malformed ciphertext error, got %v", input, err)
		}
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	encoded, err := c.Encrypt("tamper target plaintext")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// 翻转密文最后一个字节：结果要么是内容变化，要么是填充错误，
	// 绝不能出现其它类别的故障。
	raw := []byte(encoded)
	last := raw[len(raw)-1]
	if last == 'f' {
		raw[len(raw)-1] = '0'
	} else {
		raw[len(raw)-1] = 'f'
	}

	decoded, err := c.Decrypt(string(raw))
	if err != nil {
		if !stdErrors.Is(err, ErrInvalidPadding) {
			t.Fatalf("expected invalid padding error, got %v", err)
		}
		return
	}
	if decoded == "tamper target plaintext" {
		t.Fatal("tampered ciphertext decrypted to the original plaintext")
	}
}

func TestKeyNormalization(t *testing.T) {
	// 短口令补 '0'、长口令截断后，派生出的密钥必须一致可复现：
	// 同一口令的两个 Cipher 实例可以互相解密。
	short, err := New("abc")
	if err != nil {
		t.Fatalf("new short cipher: %v", err)
	}
	same, err := New("abc")
	if err != nil {
		t.Fatalf("new same cipher: %v", err)
	}

	encoded, err := short.Encrypt("cross instance")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decoded, err := same.Decrypt(encoded)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decoded != "cross instance" {
		t.Fatalf("got %q", decoded)
	}

	long := strings.Repeat("x", 40)
	truncated, err := New(long)
	if err != nil {
		t.Fatalf("new long cipher: %v", err)
	}
	exact, err := New(long[:32])
	if err != nil {
		t.Fatalf("new exact cipher: %v", err)
	}
	encoded, err = truncated.Encrypt("truncated key")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if decoded, err = exact.Decrypt(encoded); err != nil || decoded != "truncated key" {
		t.Fatalf("truncation contract broken: %q %v", decoded, err)
	}
}

func TestNewRejectsEmptyPassphrase(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}
