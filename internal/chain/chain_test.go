package chain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseNetwork(t *testing.T) {
	cases := []struct {
		raw     string
		want    Network
		wantErr bool
	}{
		{"", NetworkMainnet, false},
		{"mainnet", NetworkMainnet, false},
		{"MainNet", NetworkMainnet, false},
		{" testnet ", NetworkTestnet, false},
		{"devnet", "", true},
	}
	for _, tc := range cases {
		got, err := ParseNetwork(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseNetwork(%q) 应当报错", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNetwork(%q) 失败: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseNetwork(%q) = %q, 期望 %q", tc.raw, got, tc.want)
		}
	}
}

func TestLoadNetworkDefinitions(t *testing.T) {
	content := `networks:
  mainnet:
    type: evm
    rpc_url: https://rpc.example.com
    chain_id: 1776
    native_denom: inj
    denoms:
      usdt: "0x0000000000000000000000000000000000000001"
    description: production endpoint
  testnet:
    rpc_url: https://testnet.example.com
    chain_id: 1439
    native_denom: inj
`
	path := filepath.Join(t.TempDir(), "networks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	defs, err := LoadNetworkDefinitions(path)
	if err != nil {
		t.Fatalf("LoadNetworkDefinitions 失败: %v", err)
	}
	if len(defs.Networks) != 2 {
		t.Fatalf("网络数量 = %d，期望 2", len(defs.Networks))
	}

	mainnet, ok := defs.Definition(NetworkMainnet)
	if !ok {
		t.Fatal("缺少 mainnet 定义")
	}
	if mainnet.ChainID != 1776 || mainnet.NativeDenom != "inj" {
		t.Fatalf("mainnet 定义异常: %+v", mainnet)
	}
	if mainnet.Denoms["usdt"] == "" {
		t.Fatalf("usdt 合约地址缺失: %+v", mainnet.Denoms)
	}
}

func TestLoadNetworkDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadNetworkDefinitions("")
	if err != nil {
		t.Fatalf("空路径不应报错: %v", err)
	}
	if defs.Networks == nil || len(defs.Networks) != 0 {
		t.Fatalf("空路径应返回空定义: %+v", defs)
	}
}
