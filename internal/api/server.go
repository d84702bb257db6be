package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"InjAgent-Chain/internal/agent"
	"InjAgent-Chain/internal/chain"
	"InjAgent-Chain/internal/conversation"
	"InjAgent-Chain/internal/event"
	"InjAgent-Chain/internal/observability/metrics"
	"InjAgent-Chain/internal/wallet"
	"InjAgent-Chain/pkg/logger"
)

// Version 是 /ping 返回的服务版本号。
const Version = "1.0.0"

// Server 负责暴露钱包托管与函数调度的 REST 接口。
type Server struct {
	addr           string
	authToken      string
	wallets        *wallet.Service
	registry       *agent.Registry
	dispatcher     *agent.Dispatcher
	conversations  conversation.Store
	events         event.Publisher
	defaultNetwork chain.Network
	log            *slog.Logger
}

// Options 汇总 Server 的依赖。
type Options struct {
	Addr           string
	AuthToken      string
	Wallets        *wallet.Service
	Registry       *agent.Registry
	Dispatcher     *agent.Dispatcher
	Conversations  conversation.Store
	Events         event.Publisher
	DefaultNetwork chain.Network
}

// NewServer 构造 API 服务实例。
func NewServer(opts Options) *Server {
	network := opts.DefaultNetwork
	if network == "" {
		network = chain.NetworkMainnet
	}
	return &Server{
		addr:           opts.Addr,
		authToken:      opts.AuthToken,
		wallets:        opts.Wallets,
		registry:       opts.Registry,
		dispatcher:     opts.Dispatcher,
		conversations:  opts.Conversations,
		events:         opts.Events,
		defaultNetwork: network,
		log:            logger.Named("api"),
	}
}

// Handler 返回装配好路由与鉴权的 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.handlePing)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/v1/wallet", s.route("wallet_create", s.handleCreateWallet))
	mux.HandleFunc("/api/v1/wallet/add", s.route("wallet_add", s.handleAddWallet))
	mux.HandleFunc("/api/v1/wallet/details", s.route("wallet_details", s.handleWalletDetails))
	mux.HandleFunc("/api/v1/execute", s.route("execute", s.handleExecute))
	mux.HandleFunc("/api/v1/history", s.route("history", s.handleHistory))
	mux.HandleFunc("/api/v1/clear", s.route("clear", s.handleClear))
	return mux
}

// route 给业务端点套上鉴权与请求指标。
func (s *Server) route(name string, handler http.HandlerFunc) http.HandlerFunc {
	return metrics.Instrument(name, s.withAuth(handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("api server started", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withAuth 校验 Bearer 令牌。令牌为空时视为关闭鉴权。
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
				http.Error(w, "未授权", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   Version,
	})
}

type walletRequest struct {
	UserID     string `json:"user_id"`
	WalletName string `json:"wallet_name"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	result := s.wallets.CreateWallet(r.Context(), req.UserID, req.WalletName)
	writeJSON(w, statusOf(result.OK), result)
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	result := s.wallets.AddWallet(r.Context(), req.UserID, req.WalletName)
	writeJSON(w, statusOf(result.OK), result)
}

func (s *Server) handleWalletDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "缺少 user_id", http.StatusBadRequest)
		return
	}
	result := s.wallets.GetUserDetails(r.Context(), userID)
	writeJSON(w, statusOf(result.OK), result)
}

type executeRequest struct {
	UserID    string         `json:"user_id"`
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
	Network   string         `json:"network"`
}

// handleExecute 是函数调度入口：解出用户当前活跃钱包的私钥，
// 取得（或重建）代理会话后把调用交给调度器。任何凭据问题都
// 折叠为固定措辞的未初始化结果，不暴露内部细节。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Function == "" {
		http.Error(w, "缺少 user_id 或 function", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	network := s.defaultNetwork
	if req.Network != "" {
		parsed, err := chain.ParseNetwork(req.Network)
		if err != nil {
			http.Error(w, "未知的网络: "+req.Network, http.StatusBadRequest)
			return
		}
		network = parsed
	}

	session := s.resolveSession(ctx, req.UserID, network)
	result := s.dispatcher.Execute(ctx, session, req.Function, req.Arguments)

	if result.Success && req.Function == agent.FunctionTransferFunds {
		s.publishTransfer(ctx, req.UserID, network, result)
	}
	s.appendHistory(ctx, req.UserID, req.Function, result)
	writeJSON(w, http.StatusOK, result)
}

// publishTransfer 把成功的转账广播为业务事件。失败只记日志。
func (s *Server) publishTransfer(ctx context.Context, userID string, network chain.Network, result agent.Result) {
	if s.events == nil {
		return
	}
	payload := map[string]string{"network": string(network)}
	for _, field := range []string{"tx_hash", "to", "amount", "denom"} {
		if value, ok := result.Data[field].(string); ok {
			payload[field] = value
		}
	}
	evt := event.NewEvent(event.KindFundsTransferred, userID, payload)
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("publish transfer event failed", "user_id", userID, "error", err)
	}
}

// resolveSession 解密活跃钱包私钥并换取会话。失败返回 nil，
// 由调度器折叠为未初始化结果。
func (s *Server) resolveSession(ctx context.Context, userID string, network chain.Network) *agent.Session {
	key, err := s.wallets.GetDecryptedKey(ctx, userID)
	if err != nil {
		s.log.Warn("resolve credentials failed", "user_id", userID, "error", err)
		return nil
	}
	session, err := s.registry.GetOrCreate(ctx, userID, key, network)
	if err != nil {
		s.log.Warn("create session failed", "user_id", userID, "network", string(network), "error", err)
		return nil
	}
	return session
}

func (s *Server) appendHistory(ctx context.Context, userID, function string, result agent.Result) {
	if s.conversations == nil {
		return
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return
	}
	msg := conversation.Message{
		Role:      conversation.RoleFunction,
		Content:   function + ": " + string(encoded),
		CreatedAt: time.Now(),
	}
	if err := s.conversations.Append(ctx, userID, msg); err != nil {
		s.log.Warn("append history failed", "user_id", userID, "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "缺少 user_id", http.StatusBadRequest)
		return
	}
	history, err := s.conversations.History(r.Context(), userID)
	if err != nil {
		http.Error(w, "读取会话历史失败", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "history": history})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "缺少 user_id", http.StatusBadRequest)
		return
	}
	if err := s.conversations.Clear(r.Context(), req.UserID); err != nil {
		http.Error(w, "清空会话历史失败", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": req.UserID})
}

func statusOf(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
