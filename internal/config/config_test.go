package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "injagent.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Server.AuthTokenEnv != "INJAGENT_AUTH_TOKEN" {
		t.Fatalf("auth token env = %q", cfg.Server.AuthTokenEnv)
	}
	if cfg.Custody.PassphraseEnv != "INJAGENT_KEY_PASSPHRASE" || cfg.Custody.AddressPrefix != "inj" {
		t.Fatalf("custody 默认值异常: %+v", cfg.Custody)
	}
	if cfg.Conversations.Driver != "memory" || cfg.Conversations.MaxDepth != 5 {
		t.Fatalf("conversations 默认值异常: %+v", cfg.Conversations)
	}
	if cfg.Chain.DefaultNetwork != "mainnet" || cfg.Chain.TimeoutSeconds != 30 {
		t.Fatalf("chain 默认值异常: %+v", cfg.Chain)
	}
	// networks.yaml 默认跟随配置文件所在目录
	if cfg.Chain.NetworksConfig != filepath.Join(filepath.Dir(path), "networks.yaml") {
		t.Fatalf("networks config = %q", cfg.Chain.NetworksConfig)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
        "server": {"address": ":9999"},
        "storage": {"wallet_store": {"driver": "mysql", "dsn": "user:pass@tcp(db:3306)/injagent"}},
        "chain": {"default_network": "testnet", "timeout_seconds": 7, "networks_config": "nets.yaml"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}

	if cfg.Server.Address != ":9999" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Storage.WalletStore.Driver != "mysql" {
		t.Fatalf("driver = %q", cfg.Storage.WalletStore.Driver)
	}
	if cfg.Chain.DefaultNetwork != "testnet" || cfg.Chain.TimeoutSeconds != 7 {
		t.Fatalf("chain 配置异常: %+v", cfg.Chain)
	}
	if cfg.Chain.NetworksConfig != filepath.Join(filepath.Dir(path), "nets.yaml") {
		t.Fatalf("相对路径未按配置目录解析: %q", cfg.Chain.NetworksConfig)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("不存在的配置文件应当报错")
	}
}
