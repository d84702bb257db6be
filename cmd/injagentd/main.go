package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"InjAgent-Chain/internal/agent"
	"InjAgent-Chain/internal/api"
	"InjAgent-Chain/internal/chain"
	"InjAgent-Chain/internal/chain/provider"
	"InjAgent-Chain/internal/config"
	"InjAgent-Chain/internal/conversation"
	"InjAgent-Chain/internal/event"
	"InjAgent-Chain/internal/keycipher"
	"InjAgent-Chain/internal/observability/alerting"
	"InjAgent-Chain/internal/wallet"
	"InjAgent-Chain/pkg/logger"
)

// main 是 InjAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("injagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("INJAGENT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "injagent.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: strings.TrimSpace(cfg.Logging.AuditPath) != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 托管口令缺失直接拒绝启动，避免跑出一个不能解密的服务。
	passphrase := strings.TrimSpace(os.Getenv(cfg.Custody.PassphraseEnv))
	if passphrase == "" {
		return fmt.Errorf("环境变量 %s 未设置托管口令", cfg.Custody.PassphraseEnv)
	}
	cipher, err := keycipher.New(passphrase)
	if err != nil {
		return err
	}

	authToken := strings.TrimSpace(os.Getenv(cfg.Server.AuthTokenEnv))
	if authToken == "" {
		logger.L().Warn("auth token not set, api authentication disabled", "env", cfg.Server.AuthTokenEnv)
	}

	var walletStore wallet.Store
	switch cfg.Storage.WalletStore.Driver {
	case "", "memory":
		walletStore = wallet.NewMemoryStore()
	case "mysql":
		store, err := wallet.NewMySQLStore(cfg.Storage.WalletStore.DSN)
		if err != nil {
			return err
		}
		walletStore = store
	default:
		return fmt.Errorf("未知的钱包存储驱动: %s", cfg.Storage.WalletStore.Driver)
	}
	defer func() {
		if walletStore != nil {
			_ = walletStore.Close()
		}
	}()

	var conversations conversation.Store
	switch cfg.Conversations.Driver {
	case "", "memory":
		conversations = conversation.NewMemoryStore(cfg.Conversations.MaxDepth)
	case "redis":
		store, err := conversation.NewRedisStore(conversation.RedisConfig{
			Address:  cfg.Conversations.Redis.Address,
			Password: cfg.Conversations.Redis.Password,
			DB:       cfg.Conversations.Redis.DB,
			MaxDepth: cfg.Conversations.MaxDepth,
		})
		if err != nil {
			return err
		}
		conversations = store
	default:
		return fmt.Errorf("未知的会话存储驱动: %s", cfg.Conversations.Driver)
	}
	defer func() {
		if conversations != nil {
			_ = conversations.Close()
		}
	}()

	var events event.Publisher
	switch cfg.Events.Driver {
	case "", "memory":
		events = event.NewMemoryPublisher()
	case "rabbitmq":
		publisher, err := event.NewRabbitMQPublisher(event.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQ.URL,
			Queue:   cfg.Events.RabbitMQ.Queue,
			Durable: cfg.Events.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		events = publisher
	default:
		return fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
	defer func() {
		if events != nil {
			_ = events.Close()
		}
	}()

	wallets, err := wallet.NewService(walletStore, wallet.NewGenerator(cfg.Custody.AddressPrefix), cipher, events)
	if err != nil {
		return err
	}

	defs, err := chain.LoadNetworkDefinitions(cfg.Chain.NetworksConfig)
	if err != nil {
		return err
	}
	factory, err := provider.NewFactory(defs)
	if err != nil {
		return err
	}
	registry, err := agent.NewRegistry(factory)
	if err != nil {
		return err
	}
	defer registry.Close()

	defaultNetwork, err := chain.ParseNetwork(cfg.Chain.DefaultNetwork)
	if err != nil {
		return err
	}
	alerts := alerting.NewFanout(alerting.NewLogNotifier())
	dispatcher := agent.NewDispatcher(
		time.Duration(cfg.Chain.TimeoutSeconds)*time.Second,
		agent.WithAlerts(alerts),
	)

	server := api.NewServer(api.Options{
		Addr:           cfg.Server.Address,
		AuthToken:      authToken,
		Wallets:        wallets,
		Registry:       registry,
		Dispatcher:     dispatcher,
		Conversations:  conversations,
		Events:         events,
		DefaultNetwork: defaultNetwork,
	})

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
