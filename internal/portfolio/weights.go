package portfolio

import (
	"fmt"
	"math"
	"sort"
)

// SumTolerance 为权重归一化校验的容差。
const SumTolerance = 1e-5

// Weights 为币种到目标权重的映射。
type Weights map[string]float64

// Copy 返回独立副本。
func (w Weights) Copy() Weights {
	res := make(Weights, len(w))
	for currency, weight := range w {
		res[currency] = weight
	}
	return res
}

// Currencies 返回按字典序排序的币种列表。
func (w Weights) Currencies() []string {
	res := make([]string, 0, len(w))
	for currency := range w {
		res = append(res, currency)
	}
	sort.Strings(res)
	return res
}

// Sum 返回权重之和。
func (w Weights) Sum() float64 {
	var total float64
	for _, weight := range w {
		total += weight
	}
	return total
}

// CheckSum 校验权重之和是否在容差内等于1。
// 违反该不变量说明策略实现有缺陷，调用方应终止本次运行。
func (w Weights) CheckSum() error {
	total := w.Sum()
	if math.Abs(total-1) > SumTolerance {
		return fmt.Errorf("portfolio: 权重之和 %v 偏离1超过容差 %v", total, SumTolerance)
	}
	return nil
}
