package provider

import (
	"context"
	"strings"

	"InjAgent-Chain/internal/chain"
	"InjAgent-Chain/internal/chain/evm"
	xerrors "InjAgent-Chain/internal/errors"
)

// NewFactory 根据网络定义构造链客户端工厂。
// 每次调用工厂都会新建一个绑定到指定私钥的客户端。
func NewFactory(defs chain.NetworkDefinitions) (chain.Factory, error) {
	if len(defs.Networks) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置任何网络的 RPC 端点")
	}
	for name, def := range defs.Networks {
		networkType := strings.ToLower(strings.TrimSpace(def.Type))
		if networkType != "" && networkType != "evm" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "网络 "+name+" 使用了不支持的类型 "+def.Type)
		}
		if strings.TrimSpace(def.RPCURL) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "网络 "+name+" 缺少 RPC 地址")
		}
	}

	return func(ctx context.Context, privateKeyHex string, network chain.Network) (chain.Client, error) {
		def, ok := defs.Definition(network)
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置网络 "+string(network))
		}
		return evm.NewClient(ctx, evm.Config{
			Name:        string(network),
			RPCURL:      def.RPCURL,
			ChainID:     def.ChainID,
			NativeDenom: def.NativeDenom,
			Denoms:      def.Denoms,
			Notes:       def.Description,
		}, privateKeyHex)
	}, nil
}
