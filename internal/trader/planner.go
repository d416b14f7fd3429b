package trader

import (
	"fmt"
	"math"

	"cryptotrade/internal/portfolio"
)

// FeeMode 决定手续费在哪一侧计入。
// 原始行为在不同变体间并不一致，这里作为可配置参数统一处理。
type FeeMode string

const (
	// FeeModeBoth 买入侧按 (1+fee) 放大支出，卖出侧按 (1-fee) 缩小收入。
	FeeModeBoth FeeMode = "both"
	// FeeModeBuy 仅买入侧计费。
	FeeModeBuy FeeMode = "buy"
	// FeeModeSell 仅卖出侧计费。
	FeeModeSell FeeMode = "sell"
)

// Valid 校验手续费模式取值。
func (m FeeMode) Valid() bool {
	switch m {
	case FeeModeBoth, FeeModeBuy, FeeModeSell:
		return true
	}
	return false
}

// Planner 将目标权重向量转换为相对本位币的买卖操作列表。
type Planner struct {
	Fee  float64
	Mode FeeMode
}

// Ops 对每个非本位币的目标币种比较当前市值与目标市值，
// 差额低于目标发买单、高于目标发卖单、恰好相等不动。
// 组合总市值按全部持仓计算，而不仅限于目标币种。
func (p Planner) Ops(weights portfolio.Weights, gold string, balances portfolio.Balances, rates portfolio.PriceSeries, tick int) ([]*portfolio.Op, error) {
	if p.Fee < 0 || p.Fee >= 1 {
		return nil, fmt.Errorf("trader: 手续费率 %v 不在 [0,1) 内", p.Fee)
	}
	mode := p.Mode
	if mode == "" {
		mode = FeeModeBoth
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("trader: 未知手续费模式 %q", p.Mode)
	}

	goldTotal, err := balances.Worth(rates, tick)
	if err != nil {
		return nil, err
	}

	var ops []*portfolio.Op
	for _, currency := range weights.Currencies() {
		if currency == gold {
			continue
		}

		rate, ok := rates.Rate(currency, tick)
		if !ok {
			return nil, fmt.Errorf("trader: 币种 %s 缺少第%d个tick的汇率", currency, tick)
		}

		goldWorth := balances[currency] * rate
		goldTarget := goldTotal * weights[currency]
		goldDiff := math.Abs(goldTarget - goldWorth)
		altDiff := goldDiff / rate

		switch {
		case goldWorth < goldTarget:
			goldSpent := goldDiff
			if mode == FeeModeBoth || mode == FeeModeBuy {
				goldSpent *= 1 + p.Fee
			}
			ops = append(ops, &portfolio.Op{
				Side:       portfolio.SideBuy,
				Alt:        currency,
				AltAmount:  altDiff,
				GoldAmount: goldSpent,
				Rate:       rate,
			})
		case goldWorth > goldTarget:
			goldReceived := goldDiff
			if mode == FeeModeBoth || mode == FeeModeSell {
				goldReceived *= 1 - p.Fee
			}
			ops = append(ops, &portfolio.Op{
				Side:       portfolio.SideSell,
				Alt:        currency,
				AltAmount:  altDiff,
				GoldAmount: goldReceived,
				Rate:       rate,
			})
		}
	}

	portfolio.SortOps(ops)
	return ops, nil
}
