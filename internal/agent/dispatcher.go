package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"InjAgent-Chain/internal/chain"
	xerrors "InjAgent-Chain/internal/errors"
	"InjAgent-Chain/internal/observability/alerting"
	"InjAgent-Chain/pkg/logger"

	"github.com/google/uuid"
)

const (
	CodeInvalidArguments xerrors.Code = "INVALID_ARGUMENTS"
)

func init() {
	xerrors.Register(CodeInvalidArguments, xerrors.Attributes{
		Message:   "invalid function arguments",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// 可调度的函数名。
const (
	FunctionQueryBalances = "query_balances"
	FunctionTransferFunds = "transfer_funds"
)

// 未指定 denom_list 时查询的默认币种。
var defaultDenoms = []string{"inj", "usdt", "eth"}

// Details 记录失败时的调用上下文，帮助上层排查。
// Arguments 是原始入参的回显，调用方必须保证其中没有密钥材料。
type Details struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
}

// Result 是函数调度的统一结果。失败永远以结构化字段表达，
// 不向上抛出原始异常。
type Result struct {
	RequestID string         `json:"request_id"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Details   *Details       `json:"details,omitempty"`
}

// call 是解析后的函数调用。每个函数对应一个带类型的变体，
// 解析阶段就把参数问题暴露出来。
type call interface {
	run(ctx context.Context, client chain.Client) (map[string]any, error)
}

type queryBalancesCall struct {
	Denoms []string
}

type transferFundsCall struct {
	To     string
	Amount string
	Denom  string
}

// Dispatcher 把函数调用路由到用户会话的链客户端上。
type Dispatcher struct {
	timeout time.Duration
	alerts  alerting.Dispatcher
	log     *slog.Logger
}

// Option 定义 Dispatcher 的可选配置。
type Option func(*Dispatcher)

// WithAlerts 指定需要告警的错误走哪个告警分发器。
func WithAlerts(alerts alerting.Dispatcher) Option {
	return func(d *Dispatcher) {
		d.alerts = alerts
	}
}

// NewDispatcher 构造 Dispatcher。timeout 为零时默认 30 秒。
func NewDispatcher(timeout time.Duration, opts ...Option) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{
		timeout: timeout,
		log:     logger.Named("agent.dispatcher"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Execute 执行一次函数调用。任何失败都折叠为结构化 Result，
// panic 也会被拦下来，不会沿调用栈向外传播。
func (d *Dispatcher) Execute(ctx context.Context, session *Session, function string, arguments map[string]any) (result Result) {
	requestID := uuid.NewString()
	details := &Details{Function: function, Arguments: arguments}

	defer func() {
		if recovered := recover(); recovered != nil {
			d.log.Error("dispatch panic", "request_id", requestID, "function", function, "panic", fmt.Sprint(recovered))
			result = Result{
				RequestID: requestID,
				Success:   false,
				Error:     "internal error while executing function",
				Code:      string(xerrors.CodeUnknown),
				Details:   details,
			}
		}
	}()

	if session == nil || session.Client() == nil {
		return d.failure(ctx, requestID, "", details, ErrNotInitialized)
	}

	parsed, err := parseCall(function, arguments)
	if err != nil {
		return d.failure(ctx, requestID, session.UserID(), details, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, err := parsed.run(callCtx, session.Client())
	if err != nil {
		return d.failure(ctx, requestID, session.UserID(), details, translateDispatchError(err, function))
	}

	d.log.Info("function executed", "request_id", requestID, "function", function, "user_id", session.UserID())
	return Result{
		RequestID: requestID,
		Success:   true,
		Data:      data,
	}
}

func (d *Dispatcher) failure(ctx context.Context, requestID, userID string, details *Details, err error) Result {
	code := xerrors.CodeOf(err)
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	d.log.Warn("function failed",
		"request_id", requestID,
		"function", details.Function,
		"code", string(code),
		"error", message,
	)
	if d.alerts != nil && xerrors.ShouldAlert(err) {
		_ = d.alerts.Notify(ctx, alerting.Event{
			Code:       code,
			Message:    message,
			Severity:   xerrors.SeverityOf(err),
			UserID:     userID,
			Function:   details.Function,
			RequestID:  requestID,
			OccurredAt: time.Now(),
		})
	}
	return Result{
		RequestID: requestID,
		Success:   false,
		Error:     message,
		Code:      string(code),
		Details:   details,
	}
}

// parseCall 把原始参数解析为带类型的调用变体。
// 未知函数与参数问题都以 INVALID_ARGUMENTS 报告，并指明出错字段。
func parseCall(function string, arguments map[string]any) (call, error) {
	switch function {
	case FunctionQueryBalances:
		denoms := defaultDenoms
		if _, present := arguments["denom_list"]; present {
			parsed, err := stringSliceArg(arguments, "denom_list")
			if err != nil {
				return nil, err
			}
			if len(parsed) == 0 {
				return nil, xerrors.New(CodeInvalidArguments, "denom_list must not be empty")
			}
			denoms = parsed
		}
		return &queryBalancesCall{Denoms: denoms}, nil
	case FunctionTransferFunds:
		to, err := stringArg(arguments, "to_address")
		if err != nil {
			return nil, err
		}
		amount, err := stringArg(arguments, "amount")
		if err != nil {
			return nil, err
		}
		denom, err := stringArg(arguments, "denom")
		if err != nil {
			return nil, err
		}
		return &transferFundsCall{To: to, Amount: amount, Denom: denom}, nil
	default:
		return nil, xerrors.New(CodeInvalidArguments, "unknown function: "+function)
	}
}

func (c *queryBalancesCall) run(ctx context.Context, client chain.Client) (map[string]any, error) {
	balances, err := client.QueryBalances(ctx, c.Denoms)
	if err != nil {
		return nil, err
	}

	// 未上线代币统一展示为 0，原始信息保留在 masked_denoms 里
	masked := make([]string, 0)
	display := make(map[string]string, len(balances))
	for denom, value := range balances {
		if value == chain.SentinelUnknownDenom {
			display[denom] = "0"
			masked = append(masked, denom)
			continue
		}
		display[denom] = value
	}

	data := map[string]any{"balances": display}
	if len(masked) > 0 {
		data["masked_denoms"] = masked
	}
	return data, nil
}

func (c *transferFundsCall) run(ctx context.Context, client chain.Client) (map[string]any, error) {
	receipt, err := client.Transfer(ctx, c.To, c.Amount, c.Denom)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tx_hash": receipt.TxHash,
		"to":      c.To,
		"amount":  c.Amount,
		"denom":   c.Denom,
	}, nil
}

// translateDispatchError 统一链路错误的呈现。
// 超时的转账结果未知，调用方不得自动重发。
func translateDispatchError(err error, function string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		if function == FunctionTransferFunds {
			return xerrors.Wrap(chain.CodeChainTimeout, err, "transfer timed out, outcome unknown")
		}
		return xerrors.Wrap(chain.CodeChainTimeout, err, "chain query timed out")
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(chain.CodeChainFailure, err, "chain operation failed")
}

func stringArg(arguments map[string]any, field string) (string, error) {
	raw, ok := arguments[field]
	if !ok {
		return "", xerrors.New(CodeInvalidArguments, "missing argument: "+field)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", xerrors.New(CodeInvalidArguments, "argument "+field+" must be a non-empty string")
	}
	return value, nil
}

func stringSliceArg(arguments map[string]any, field string) ([]string, error) {
	raw, ok := arguments[field]
	if !ok {
		return nil, xerrors.New(CodeInvalidArguments, "missing argument: "+field)
	}
	switch typed := raw.(type) {
	case []string:
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, xerrors.New(CodeInvalidArguments, "argument "+field+" must be a list of strings")
			}
			out = append(out, value)
		}
		return out, nil
	default:
		return nil, xerrors.New(CodeInvalidArguments, "argument "+field+" must be a list of strings")
	}
}
