package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 InjAgent 在启动阶段需要加载的核心配置。
// 口令与鉴权令牌只通过环境变量传入，配置文件里只写变量名。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Logging       LoggingConfig       `json:"logging"`
	Custody       CustodyConfig       `json:"custody"`
	Storage       StorageConfig       `json:"storage"`
	Conversations ConversationsConfig `json:"conversations"`
	Events        EventsConfig        `json:"events"`
	Chain         ChainConfig         `json:"chain"`
}

// ServerConfig 控制 API 服务的监听地址与鉴权。
type ServerConfig struct {
	Address      string `json:"address"`
	AuthTokenEnv string `json:"auth_token_env"`
}

// LoggingConfig 控制结构化日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// CustodyConfig 控制钱包托管行为。
type CustodyConfig struct {
	PassphraseEnv string `json:"passphrase_env"`
	AddressPrefix string `json:"address_prefix"`
}

// StorageConfig 统一描述钱包存储后端的连接信息。
type StorageConfig struct {
	WalletStore WalletStoreConfig `json:"wallet_store"`
}

// WalletStoreConfig 支持 memory 与 mysql 两种驱动。
type WalletStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ConversationsConfig 控制会话历史的存储。
type ConversationsConfig struct {
	Driver   string      `json:"driver"`
	MaxDepth int         `json:"max_depth"`
	Redis    RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EventsConfig 控制业务事件的投递。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// ChainConfig 描述链访问参数。
type ChainConfig struct {
	NetworksConfig string `json:"networks_config"`
	DefaultNetwork string `json:"default_network"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.AuthTokenEnv == "" {
		c.Server.AuthTokenEnv = "INJAGENT_AUTH_TOKEN"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}

	if c.Custody.PassphraseEnv == "" {
		c.Custody.PassphraseEnv = "INJAGENT_KEY_PASSPHRASE"
	}
	if c.Custody.AddressPrefix == "" {
		c.Custody.AddressPrefix = "inj"
	}

	if c.Storage.WalletStore.Driver == "" {
		c.Storage.WalletStore.Driver = "memory"
	}

	if c.Conversations.Driver == "" {
		c.Conversations.Driver = "memory"
	}
	if c.Conversations.MaxDepth <= 0 {
		c.Conversations.MaxDepth = 5
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}

	if c.Chain.NetworksConfig == "" {
		c.Chain.NetworksConfig = filepath.Join(baseDir, "networks.yaml")
	} else if !filepath.IsAbs(c.Chain.NetworksConfig) {
		c.Chain.NetworksConfig = filepath.Join(baseDir, c.Chain.NetworksConfig)
	}
	if c.Chain.DefaultNetwork == "" {
		c.Chain.DefaultNetwork = "mainnet"
	}
	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = 30
	}
}
