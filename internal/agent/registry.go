package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"InjAgent-Chain/internal/chain"
	xerrors "InjAgent-Chain/internal/errors"
	"InjAgent-Chain/pkg/logger"
)

const (
	CodeNotInitialized xerrors.Code = "AGENT_NOT_INITIALIZED"
)

// ErrNotInitialized 表示没有可用的代理会话。
// 消息面向终端用户，保持固定措辞。
var ErrNotInitialized = xerrors.New(CodeNotInitialized, "Agent not initialized. Please provide valid credentials.")

func init() {
	xerrors.Register(CodeNotInitialized, xerrors.Attributes{
		Message:   "Agent not initialized. Please provide valid credentials.",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// Session 是某个用户在某个网络上的代理会话，持有已初始化的链客户端。
// keyHash 记录构建会话时使用的密钥指纹，用于失效判断。
type Session struct {
	userID    string
	network   chain.Network
	client    chain.Client
	keyHash   string
	createdAt time.Time
}

// Client 返回会话绑定的链客户端。
func (s *Session) Client() chain.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// UserID 返回会话归属的用户。
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.userID
}

// Network 返回会话连接的网络。
func (s *Session) Network() chain.Network {
	if s == nil {
		return ""
	}
	return s.network
}

// Registry 按用户与网络缓存代理会话。密钥材料本身不落缓存，
// 只保留 SHA-256 指纹：活跃钱包切换后指纹变化，旧会话被替换。
type Registry struct {
	mu       sync.Mutex
	factory  chain.Factory
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	log      *slog.Logger
}

// NewRegistry 构造 Registry。
func NewRegistry(factory chain.Factory) (*Registry, error) {
	if factory == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "chain factory 不能为空")
	}
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		log:      logger.Named("agent.registry"),
	}, nil
}

// keyLock 返回会话键对应的互斥锁。同一用户同一网络的构建串行，
// 不同会话键之间互不阻塞。
func (r *Registry) keyLock(cacheKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[cacheKey]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[cacheKey] = lock
	}
	return lock
}

// GetOrCreate 返回用户在指定网络上的会话。缓存的会话只有在
// 密钥指纹一致时才会复用，否则重建并替换。
func (r *Registry) GetOrCreate(ctx context.Context, userID, privateKeyHex string, network chain.Network) (*Session, error) {
	if userID == "" || privateKeyHex == "" {
		return nil, ErrNotInitialized
	}

	cacheKey := userID + "/" + string(network)
	keyHash := fingerprint(privateKeyHex)

	lock := r.keyLock(cacheKey)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	existing, ok := r.sessions[cacheKey]
	r.mu.Unlock()
	if ok {
		if existing.keyHash == keyHash {
			return existing, nil
		}
		existing.client.Close()
		r.mu.Lock()
		delete(r.sessions, cacheKey)
		r.mu.Unlock()
		r.log.Info("session rebuilt after key change", "user_id", userID, "network", string(network))
	}

	// 拨号只持有会话键锁，慢节点不会拖住其他用户的会话解析。
	client, err := r.factory(ctx, privateKeyHex, network)
	if err != nil {
		return nil, err
	}
	session := &Session{
		userID:    userID,
		network:   network,
		client:    client,
		keyHash:   keyHash,
		createdAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[cacheKey] = session
	r.mu.Unlock()
	r.log.Info("session created", "user_id", userID, "network", string(network))
	return session, nil
}

// Get 返回已缓存的会话，不存在时返回 ErrNotInitialized。
func (r *Registry) Get(userID string, network chain.Network) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[userID+"/"+string(network)]
	if !ok {
		return nil, ErrNotInitialized
	}
	return session, nil
}

// Invalidate 丢弃用户在所有网络上的会话。
func (r *Registry) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, session := range r.sessions {
		if session.userID == userID {
			session.client.Close()
			delete(r.sessions, key)
		}
	}
}

// Close 关闭全部会话。
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, session := range r.sessions {
		session.client.Close()
		delete(r.sessions, key)
	}
}

func fingerprint(privateKeyHex string) string {
	sum := sha256.Sum256([]byte(privateKeyHex))
	return hex.EncodeToString(sum[:])
}
