package strategy

import (
	"fmt"
	"math"

	"cryptotrade/internal/portfolio"
)

// 默认单步更新幅度上限，对应 PAMR-1 的截断形式。
const defaultPAMRCap = 1.0

// 价格相对值离散度低于该值时跳过更新，避免除零。
const dispersionEpsilon = 1e-12

// PAMR 为被动均值回归策略（passive aggressive mean reversion）：
// 每个tick根据上一tick的价格相对值调整权重，押注价格回归均值。
// 内部状态为上一轮权重向量，仅在一次运行的生命周期内有效。
type PAMR struct {
	cap     float64
	current portfolio.Weights
}

// NewPAMR 创建自适应策略，cap 非正时取默认上限。
func NewPAMR(cap float64) *PAMR {
	if cap <= 0 {
		cap = defaultPAMRCap
	}
	return &PAMR{cap: cap}
}

func (*PAMR) Name() string { return "pamr" }

func (*PAMR) Passive() bool { return false }

// Weights 在第0个tick以当前持仓的价值构成作为种子权重，
// 之后每个tick按价格相对值与损失做一次截断的被动攻击更新，
// 再投影回概率单纯形。
func (p *PAMR) Weights(req Request) (portfolio.Weights, error) {
	currencies := universe(req)
	if len(currencies) == 0 {
		return nil, fmt.Errorf("strategy: pamr 无目标且无持仓")
	}

	if p.current == nil || req.Tick == 0 {
		seeded, err := seedFromBalances(currencies, req)
		if err != nil {
			return nil, err
		}
		p.current = seeded
		return p.current.Copy(), nil
	}

	relatives := make([]float64, len(currencies))
	for i, currency := range currencies {
		if currency == req.Gold {
			relatives[i] = 1.0
			continue
		}
		curr, ok := req.Rates.Rate(currency, req.Tick)
		prev, okPrev := req.Rates.Rate(currency, req.Tick-1)
		if !ok || !okPrev {
			return nil, fmt.Errorf("strategy: pamr 缺少币种 %s 在tick %d 附近的汇率", currency, req.Tick)
		}
		relatives[i] = curr / prev
	}

	var dot float64
	var mean float64
	for i, currency := range currencies {
		dot += p.current[currency] * relatives[i]
		mean += relatives[i]
	}
	mean /= float64(len(relatives))

	var sqDev float64
	for _, x := range relatives {
		d := x - mean
		sqDev += d * d
	}

	loss := math.Max(0, dot-1)

	// 价格相对值无离散度时没有可利用的回归方向，权重保持不变。
	if sqDev > dispersionEpsilon {
		tao := math.Min(p.cap, loss/sqDev)
		updated := make([]float64, len(currencies))
		for i, currency := range currencies {
			updated[i] = p.current[currency] - tao*(relatives[i]-mean)
		}
		projected := projectSimplex(updated)
		next := make(portfolio.Weights, len(currencies))
		for i, currency := range currencies {
			next[currency] = projected[i]
		}
		p.current = next
	}

	return p.current.Copy(), nil
}

// seedFromBalances 按持仓市值归一化得到初始权重。
func seedFromBalances(currencies []string, req Request) (portfolio.Weights, error) {
	values := make(portfolio.Weights, len(currencies))
	var total float64
	for _, currency := range currencies {
		amount := req.Balances[currency]
		if amount <= 0 {
			values[currency] = 0
			continue
		}
		rate, ok := req.Rates.Rate(currency, req.Tick)
		if !ok {
			return nil, fmt.Errorf("strategy: pamr 持仓币种 %s 缺少第%d个tick的汇率", currency, req.Tick)
		}
		value := amount * rate
		values[currency] = value
		total += value
	}
	if total <= 0 {
		return nil, fmt.Errorf("strategy: pamr 组合总价值非正，无法生成初始权重")
	}
	for currency, value := range values {
		values[currency] = value / total
	}
	return values, nil
}
