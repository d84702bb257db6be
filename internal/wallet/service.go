package wallet

import (
	"context"
	"log/slog"
	"strings"

	xerrors "InjAgent-Chain/internal/errors"
	"InjAgent-Chain/internal/event"
	"InjAgent-Chain/internal/keycipher"
	"InjAgent-Chain/pkg/logger"
)

// DefaultItemName 是未指定名称时使用的子钱包名。
const DefaultItemName = "wallet"

// Service 是钱包托管的业务入口。所有对外方法返回统一的 Result，
// 失败以显式错误消息表达，永远不会把私钥材料带进结果或日志。
type Service struct {
	store  Store
	gen    Generator
	cipher *keycipher.Cipher
	events event.Publisher
	log    *slog.Logger
}

// NewService 构造 Service。events 可以为 nil，表示不投递业务事件。
func NewService(store Store, gen Generator, cipher *keycipher.Cipher, events event.Publisher) (*Service, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet store 不能为空")
	}
	if gen == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet generator 不能为空")
	}
	if cipher == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "key cipher 不能为空")
	}
	return &Service{
		store:  store,
		gen:    gen,
		cipher: cipher,
		events: events,
		log:    logger.Named("wallet"),
	}, nil
}

// CreateWallet 为新用户创建钱包记录。首个子钱包即当前活跃地址。
// 名称为空时使用 DefaultItemName。
func (s *Service) CreateWallet(ctx context.Context, userID, name string) Result {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return failure(xerrors.New(xerrors.CodeInvalidArgument, "user_id cannot be empty"))
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultItemName
	}

	exists, err := s.store.Exists(ctx, userID)
	if err != nil {
		return failure(err)
	}
	if exists {
		return failure(ErrDuplicateUser)
	}

	item, err := s.newItem(name)
	if err != nil {
		return failure(err)
	}

	record := &Record{
		UserID:         userID,
		CurrentAddress: item.Address,
		Items:          []Item{item},
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return failure(err)
	}

	s.publish(ctx, event.NewEvent(event.KindWalletCreated, userID, map[string]string{
		"wallet_name": item.Name,
		"address":     item.Address,
	}))
	s.log.Info("wallet created", "user_id", userID, "wallet_name", item.Name, "address", item.Address)

	summary := summaryOf(item)
	return Result{
		OK:             true,
		UserID:         userID,
		CurrentAddress: item.Address,
		NewWallet:      &summary,
	}
}

// AddWallet 向已有用户追加一个命名子钱包。追加不会切换当前活跃地址。
func (s *Service) AddWallet(ctx context.Context, userID, name string) Result {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return failure(xerrors.New(xerrors.CodeInvalidArgument, "user_id cannot be empty"))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return failure(xerrors.New(xerrors.CodeInvalidArgument, "wallet_name cannot be empty"))
	}

	item, err := s.newItem(name)
	if err != nil {
		return failure(err)
	}
	if err := s.store.AppendItem(ctx, userID, item); err != nil {
		return failure(err)
	}

	s.publish(ctx, event.NewEvent(event.KindWalletAdded, userID, map[string]string{
		"wallet_name": item.Name,
		"address":     item.Address,
	}))
	s.log.Info("wallet added", "user_id", userID, "wallet_name", item.Name, "address", item.Address)

	summary := summaryOf(item)
	return Result{
		OK:        true,
		UserID:    userID,
		NewWallet: &summary,
	}
}

// GetUserDetails 返回用户的钱包概览，密钥材料被剥离。
func (s *Service) GetUserDetails(ctx context.Context, userID string) Result {
	record, err := s.store.Get(ctx, userID)
	if err != nil {
		return failure(err)
	}
	return Result{
		OK:             true,
		UserID:         record.UserID,
		CurrentAddress: record.CurrentAddress,
		Wallets:        Summaries(record.Items),
	}
}

// GetDecryptedKey 解密当前活跃地址对应子钱包的私钥，
// 返回去掉 "0x" 前缀的十六进制串。调用方用完即弃，不得缓存。
func (s *Service) GetDecryptedKey(ctx context.Context, userID string) (string, error) {
	record, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if record.CurrentAddress == "" {
		return "", ErrNoActiveAddress
	}

	for _, item := range record.Items {
		if item.Address != record.CurrentAddress {
			continue
		}
		plain, err := s.cipher.Decrypt(item.EncryptedKey)
		if err != nil {
			return "", err
		}
		return strings.TrimPrefix(plain, "0x"), nil
	}
	return "", ErrItemNotFound
}

// UserExists 报告用户是否已有钱包记录。
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	return s.store.Exists(ctx, userID)
}

// SetCurrentAddress 把用户的活跃地址切换到其名下的某个子钱包。
func (s *Service) SetCurrentAddress(ctx context.Context, userID, address string) Result {
	if err := s.store.SetCurrentAddress(ctx, userID, address); err != nil {
		return failure(err)
	}
	return Result{OK: true, UserID: userID, CurrentAddress: address}
}

// DeleteWallet 删除用户的整条钱包记录。
func (s *Service) DeleteWallet(ctx context.Context, userID string) Result {
	if err := s.store.Delete(ctx, userID); err != nil {
		return failure(err)
	}
	s.log.Info("wallet deleted", "user_id", userID)
	return Result{OK: true, UserID: userID}
}

// newItem 生成密钥对并立即加密私钥，明文不离开本函数。
func (s *Service) newItem(name string) (Item, error) {
	pair, err := s.gen.Create()
	if err != nil {
		return Item{}, err
	}
	encrypted, err := s.cipher.Encrypt(pair.PrivateKey)
	if err != nil {
		return Item{}, xerrors.Wrap(CodeCreationFailed, err, "encrypt private key")
	}
	return Item{
		Name:             name,
		Address:          pair.PrimaryAddress,
		SecondaryAddress: pair.SecondaryAddress,
		EncryptedKey:     encrypted,
	}, nil
}

// publish 投递业务事件。失败只记日志，不影响主流程。
func (s *Service) publish(ctx context.Context, evt event.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("publish event failed", "kind", string(evt.Kind), "user_id", evt.UserID, "error", err)
	}
}

// failure 把领域错误转换为统一的失败结果。
func failure(err error) Result {
	if e, ok := xerrors.From(err); ok {
		return Result{OK: false, Error: e.Message(), ErrorCode: string(e.Code())}
	}
	return Result{OK: false, Error: err.Error(), ErrorCode: string(xerrors.CodeUnknown)}
}

func summaryOf(item Item) ItemSummary {
	return ItemSummary{
		Name:             item.Name,
		Address:          item.Address,
		SecondaryAddress: item.SecondaryAddress,
	}
}
