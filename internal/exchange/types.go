package exchange

import (
	"time"

	"cryptotrade/internal/portfolio"
)

// CandlePeriods 为交易所支持的蜡烛周期（秒）。
var CandlePeriods = []int64{300, 900, 1800, 7200, 14400, 86400}

// ValidPeriod 判断周期是否受支持。
func ValidPeriod(period int64) bool {
	for _, p := range CandlePeriods {
		if p == period {
			return true
		}
	}
	return false
}

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Order 为交易所侧的挂单记录。
type Order struct {
	ID     string
	Pair   string
	Side   portfolio.Side
	Rate   float64
	Amount float64
	Total  float64
}

// OpenOrders 按交易对归组的当前挂单。
type OpenOrders map[string][]Order

// Count 返回挂单总数。
func (o OpenOrders) Count() int {
	var n int
	for _, orders := range o {
		n += len(orders)
	}
	return n
}
