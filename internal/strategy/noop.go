package strategy

import "cryptotrade/internal/portfolio"

// Noop 为持有不动策略（buy and hold）：从不产生交易。
type Noop struct{}

func (*Noop) Name() string { return "noop" }

func (*Noop) Passive() bool { return true }

// Weights 原样返回上一轮权重。
func (*Noop) Weights(req Request) (portfolio.Weights, error) {
	return req.Prior.Copy(), nil
}
