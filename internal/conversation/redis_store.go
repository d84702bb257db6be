package conversation

import (
	"context"
	"encoding/json"
	"time"

	xerrors "InjAgent-Chain/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述会话历史存储的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	MaxDepth  int
	TTL       time.Duration
}

// RedisStore 把会话历史保存在 Redis list 里，
// 每个用户一个 key，用 LTRIM 维持深度上限。
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxDepth int
	ttl      time.Duration
}

// NewRedisStore 创建 RedisStore。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "injagent:conversation:"
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		maxDepth: maxDepth,
		ttl:      cfg.TTL,
	}, nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Append 实现 Store 接口。
func (s *RedisStore) Append(ctx context.Context, userID string, msg Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码会话消息失败")
	}

	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, encoded)
	pipe.LTrim(ctx, key, int64(-s.maxDepth*2), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "追加会话消息失败")
	}
	return nil
}

// History 实现 Store 接口。
func (s *RedisStore) History(ctx context.Context, userID string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话历史失败")
	}
	history := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话消息失败")
		}
		history = append(history, msg)
	}
	return history, nil
}

// Clear 实现 Store 接口。
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空会话历史失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
