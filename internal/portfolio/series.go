package portfolio

import (
	"fmt"
	"sort"
)

// PriceSeries 为币种到汇率序列的映射，按tick对齐。
// 汇率以本位币计价，本位币自身的序列恒为1。
type PriceSeries map[string][]float64

// Len 返回序列长度（即tick数量）。
func (s PriceSeries) Len() int {
	for _, rates := range s {
		return len(rates)
	}
	return 0
}

// Rate 返回指定币种在指定tick的汇率。
func (s PriceSeries) Rate(currency string, tick int) (float64, bool) {
	rates, ok := s[currency]
	if !ok || tick < 0 || tick >= len(rates) {
		return 0, false
	}
	return rates[tick], true
}

// Currencies 返回按字典序排序的币种列表，保证遍历顺序确定。
func (s PriceSeries) Currencies() []string {
	res := make([]string, 0, len(s))
	for currency := range s {
		res = append(res, currency)
	}
	sort.Strings(res)
	return res
}

// Validate 校验序列完整性：所有币种序列长度一致且汇率为正，
// 本位币序列必须存在。不满足视为致命输入错误。
func (s PriceSeries) Validate(gold string) error {
	if len(s) == 0 {
		return fmt.Errorf("portfolio: 汇率序列为空")
	}
	if _, ok := s[gold]; !ok {
		return fmt.Errorf("portfolio: 缺少本位币 %s 的汇率序列", gold)
	}

	length := -1
	for _, currency := range s.Currencies() {
		rates := s[currency]
		if length < 0 {
			length = len(rates)
		} else if len(rates) != length {
			return fmt.Errorf("portfolio: 币种 %s 的序列长度 %d 与其他币种 %d 不一致",
				currency, len(rates), length)
		}
		for tick, rate := range rates {
			if rate <= 0 {
				return fmt.Errorf("portfolio: 币种 %s 在第%d个tick的汇率 %v 非正", currency, tick, rate)
			}
		}
	}
	if length == 0 {
		return fmt.Errorf("portfolio: 汇率序列长度为0")
	}
	return nil
}
