package strategy

import (
	"sort"

	"cryptotrade/internal/portfolio"
)

// Request 为一次权重计算的全部输入。
// 策略必须只依赖这些输入及自身内部状态，保证回测可重复。
type Request struct {
	Targets  portfolio.Weights
	Prior    portfolio.Weights
	Gold     string
	Balances portfolio.Balances
	Rates    portfolio.PriceSeries
	Tick     int
}

// Policy 为再平衡策略的统一接口。
// 策略集合封闭，新增策略通过扩展注册表实现，不做开放式继承。
type Policy interface {
	// Name 返回注册表中的策略名。
	Name() string
	// Passive 为真时下游不生成任何交易操作。
	Passive() bool
	// Weights 返回目标权重向量，键为目标币种与正持仓币种的并集，
	// 权重之和必须在容差内等于1。
	Weights(req Request) (portfolio.Weights, error)
}

// universe 返回目标币种与正持仓币种（含本位币）的并集，按字典序排序。
func universe(req Request) []string {
	seen := make(map[string]struct{}, len(req.Targets)+len(req.Balances)+1)
	for currency := range req.Targets {
		seen[currency] = struct{}{}
	}
	for currency, amount := range req.Balances {
		if amount > 0 {
			seen[currency] = struct{}{}
		}
	}
	if req.Gold != "" {
		seen[req.Gold] = struct{}{}
	}

	res := make([]string, 0, len(seen))
	for currency := range seen {
		res = append(res, currency)
	}
	sort.Strings(res)
	return res
}

// withUniverse 为并集中缺失的币种补零权重，使返回键集满足接口契约。
func withUniverse(weights portfolio.Weights, req Request) portfolio.Weights {
	res := weights.Copy()
	for _, currency := range universe(req) {
		if _, ok := res[currency]; !ok {
			res[currency] = 0
		}
	}
	return res
}
