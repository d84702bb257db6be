package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"InjAgent-Chain/internal/event"
	"InjAgent-Chain/internal/keycipher"
)

// stubGenerator 生成可预测的密钥对，必要时可以制造地址冲突。
type stubGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *stubGenerator) Create() (Keypair, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	seed := fmt.Sprintf("%064x", g.next)
	return Keypair{
		PrimaryAddress:   fmt.Sprintf("inj1stub%056d", g.next),
		SecondaryAddress: fmt.Sprintf("0xStub%036d", g.next),
		PrivateKey:       "0x" + seed,
	}, nil
}

func newTestService(t *testing.T) (*Service, *event.MemoryPublisher) {
	t.Helper()
	cipher, err := keycipher.New("unit-test-passphrase")
	if err != nil {
		t.Fatalf("构造 cipher 失败: %v", err)
	}
	events := event.NewMemoryPublisher()
	svc, err := NewService(NewMemoryStore(), &stubGenerator{}, cipher, events)
	if err != nil {
		t.Fatalf("构造 service 失败: %v", err)
	}
	return svc, events
}

func TestServiceCreateWallet(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	result := svc.CreateWallet(ctx, "u1", "")
	if !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}
	if result.NewWallet == nil || result.NewWallet.Name != DefaultItemName {
		t.Fatalf("默认名称未生效: %+v", result.NewWallet)
	}
	if result.CurrentAddress != result.NewWallet.Address {
		t.Fatalf("首个子钱包应为活跃地址: %+v", result)
	}

	// 重复创建必须失败且不覆盖既有记录
	dup := svc.CreateWallet(ctx, "u1", "other")
	if dup.OK || dup.ErrorCode != string(CodeDuplicateUser) {
		t.Fatalf("重复创建未被拒绝: %+v", dup)
	}

	published := events.Events()
	if len(published) != 1 || published[0].Kind != event.KindWalletCreated {
		t.Fatalf("事件投递异常: %+v", published)
	}
}

func TestServiceResultNeverLeaksKeyMaterial(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	create := svc.CreateWallet(ctx, "u1", "main")
	if !create.OK {
		t.Fatalf("CreateWallet 失败: %s", create.Error)
	}
	details := svc.GetUserDetails(ctx, "u1")
	if !details.OK {
		t.Fatalf("GetUserDetails 失败: %s", details.Error)
	}

	for _, result := range []Result{create, details} {
		encoded, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("序列化结果失败: %v", err)
		}
		payload := string(encoded)
		if strings.Contains(payload, "encrypted_key") || strings.Contains(payload, "private") {
			t.Fatalf("结果中出现密钥字段: %s", payload)
		}
		// stubGenerator 的私钥是 64 位十六进制计数器
		if regexp.MustCompile(`[0-9a-f]{64}`).MatchString(payload) {
			t.Fatalf("结果中疑似出现私钥明文: %s", payload)
		}
	}
}

func TestServiceAddWallet(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()

	if result := svc.CreateWallet(ctx, "u1", "main"); !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}

	dup := svc.AddWallet(ctx, "u1", "main")
	if dup.OK || dup.ErrorCode != string(CodeDuplicateName) {
		t.Fatalf("同名追加未被拒绝: %+v", dup)
	}

	second := svc.AddWallet(ctx, "u1", "second")
	if !second.OK {
		t.Fatalf("AddWallet 失败: %s", second.Error)
	}

	details := svc.GetUserDetails(ctx, "u1")
	if len(details.Wallets) != 2 {
		t.Fatalf("子钱包数量 = %d，期望 2", len(details.Wallets))
	}
	// 追加不切换活跃地址
	if details.CurrentAddress != details.Wallets[0].Address {
		t.Fatalf("追加后活跃地址被意外切换: %+v", details)
	}

	missing := svc.AddWallet(ctx, "nobody", "x")
	if missing.OK || missing.ErrorCode != string(CodeUserNotFound) {
		t.Fatalf("不存在用户的追加未被拒绝: %+v", missing)
	}

	if kinds := events.Events(); len(kinds) != 2 {
		t.Fatalf("事件数量 = %d，期望 2", len(kinds))
	}
}

func TestServiceGetDecryptedKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if result := svc.CreateWallet(ctx, "u1", "main"); !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}

	key, err := svc.GetDecryptedKey(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDecryptedKey 失败: %v", err)
	}
	if strings.HasPrefix(key, "0x") {
		t.Fatalf("解密结果不应携带 0x 前缀: %q", key)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(key) {
		t.Fatalf("解密结果不是 64 位十六进制: %q", key)
	}

	if _, err := svc.GetDecryptedKey(ctx, "nobody"); err == nil {
		t.Fatal("不存在用户的解密没有报错")
	}
}

func TestServiceSetCurrentAddressSwitchesKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if result := svc.CreateWallet(ctx, "u1", "main"); !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}
	second := svc.AddWallet(ctx, "u1", "second")
	if !second.OK {
		t.Fatalf("AddWallet 失败: %s", second.Error)
	}

	firstKey, err := svc.GetDecryptedKey(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDecryptedKey 失败: %v", err)
	}

	if result := svc.SetCurrentAddress(ctx, "u1", second.NewWallet.Address); !result.OK {
		t.Fatalf("SetCurrentAddress 失败: %s", result.Error)
	}
	secondKey, err := svc.GetDecryptedKey(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDecryptedKey 失败: %v", err)
	}
	if firstKey == secondKey {
		t.Fatal("切换活跃地址后仍解出同一把私钥")
	}
}

func TestServiceConcurrentAddSameName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if result := svc.CreateWallet(ctx, "u1", "main"); !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]Result, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.AddWallet(ctx, "u1", "racer")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, result := range results {
		if result.OK {
			succeeded++
		} else if result.ErrorCode != string(CodeDuplicateName) {
			t.Fatalf("意外错误: %+v", result)
		}
	}
	if succeeded != 1 {
		t.Fatalf("同名并发追加成功 %d 次，期望恰好 1 次", succeeded)
	}
}

func TestServiceUserExists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	exists, err := svc.UserExists(ctx, "u1")
	if err != nil || exists {
		t.Fatalf("未创建用户 Exists = %v, err = %v", exists, err)
	}
	if result := svc.CreateWallet(ctx, "u1", "main"); !result.OK {
		t.Fatalf("CreateWallet 失败: %s", result.Error)
	}
	exists, err = svc.UserExists(ctx, "u1")
	if err != nil || !exists {
		t.Fatalf("已创建用户 Exists = %v, err = %v", exists, err)
	}
}
