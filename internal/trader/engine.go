package trader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/strategy"
)

// Engine 驱动策略与计划器逐tick遍历汇率序列，
// 既用于历史回测，也用于实盘单tick的计划生成。
type Engine struct {
	policy  strategy.Policy
	planner Planner
	gold    string
	logger  *zap.Logger
}

// NewEngine 创建再平衡引擎。
func NewEngine(policy strategy.Policy, planner Planner, gold string, logger *zap.Logger) (*Engine, error) {
	if policy == nil {
		return nil, fmt.Errorf("trader: policy 不能为空")
	}
	if gold == "" {
		return nil, fmt.Errorf("trader: 本位币不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy:  policy,
		planner: planner,
		gold:    gold,
		logger:  logger,
	}, nil
}

// Run 逐tick执行：取权重、校验归一化、生成操作、应用到余额快照。
// 权重不归一或出现负余额都说明策略或计划器有缺陷，整次运行失败。
// 返回完整计划与最后一个tick之后的余额。
func (e *Engine) Run(ctx context.Context, targets portfolio.Weights, balances portfolio.Balances, rates portfolio.PriceSeries) (portfolio.Plan, portfolio.Balances, error) {
	if err := rates.Validate(e.gold); err != nil {
		return nil, nil, err
	}

	current := balances.Copy()
	plan := make(portfolio.Plan, 0, rates.Len())
	var prior portfolio.Weights

	for tick := 0; tick < rates.Len(); tick++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if e.policy.Passive() {
			plan = append(plan, portfolio.PlanEntry{Tick: tick})
			continue
		}

		weights, err := e.policy.Weights(strategy.Request{
			Targets:  targets,
			Prior:    prior,
			Gold:     e.gold,
			Balances: current,
			Rates:    rates,
			Tick:     tick,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("trader: 第%d个tick计算权重失败: %w", tick, err)
		}
		if err := weights.CheckSum(); err != nil {
			return nil, nil, fmt.Errorf("trader: 第%d个tick权重校验失败: %w", tick, err)
		}

		ops, err := e.planner.Ops(weights, e.gold, current, rates, tick)
		if err != nil {
			return nil, nil, fmt.Errorf("trader: 第%d个tick生成操作失败: %w", tick, err)
		}
		plan = append(plan, portfolio.PlanEntry{Tick: tick, Ops: ops})

		current, err = portfolio.ApplyOps(current, e.gold, ops)
		if err != nil {
			return nil, nil, fmt.Errorf("trader: 第%d个tick应用操作失败: %w", tick, err)
		}

		e.logger.Debug("tick完成",
			zap.Int("tick", tick),
			zap.Int("ops", len(ops)),
			zap.String("strategy", e.policy.Name()),
		)
		prior = weights
	}

	return plan, current, nil
}
