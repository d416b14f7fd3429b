package portfolio

import (
	"fmt"
	"strings"
)

// Balances 为币种到持仓量的映射，币种统一为大写。
type Balances map[string]float64

// NewBalances 规范化币种大小写并过滤非正持仓。
func NewBalances(raw map[string]float64) Balances {
	res := make(Balances, len(raw))
	for currency, amount := range raw {
		if amount <= 0 {
			continue
		}
		res[strings.ToUpper(currency)] += amount
	}
	return res
}

// Copy 返回独立副本，保证tick之间的余额快照互不影响。
func (b Balances) Copy() Balances {
	res := make(Balances, len(b))
	for currency, amount := range b {
		res[currency] = amount
	}
	return res
}

// Worth 以本位币计算全部持仓的总价值。
// 任何正持仓缺少对应汇率序列都视为输入错误。
func (b Balances) Worth(rates PriceSeries, tick int) (float64, error) {
	var total float64
	for currency, amount := range b {
		if amount == 0 {
			continue
		}
		rate, ok := rates.Rate(currency, tick)
		if !ok {
			return 0, fmt.Errorf("portfolio: 持仓币种 %s 缺少第%d个tick的汇率", currency, tick)
		}
		total += amount * rate
	}
	return total, nil
}
