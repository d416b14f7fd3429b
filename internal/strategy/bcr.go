package strategy

import (
	"fmt"

	"cryptotrade/internal/portfolio"
)

// BCR 为固定权重再平衡策略（balanced constant-rebalanced）：
// 每个tick都把组合拉回配置的目标权重。
type BCR struct{}

func (*BCR) Name() string { return "bcr" }

func (*BCR) Passive() bool { return false }

// Weights 直接返回目标权重；目标为空时对持仓币种做均匀分配。
func (*BCR) Weights(req Request) (portfolio.Weights, error) {
	if len(req.Targets) == 0 {
		currencies := universe(req)
		if len(currencies) == 0 {
			return nil, fmt.Errorf("strategy: bcr 无目标权重且无持仓，无法均匀分配")
		}
		res := make(portfolio.Weights, len(currencies))
		share := 1.0 / float64(len(currencies))
		for _, currency := range currencies {
			res[currency] = share
		}
		return res, nil
	}

	if err := req.Targets.CheckSum(); err != nil {
		return nil, fmt.Errorf("strategy: bcr 目标权重配置无效: %w", err)
	}
	return withUniverse(req.Targets, req), nil
}
