package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"cryptotrade/internal/exchange"
	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/store"
	"cryptotrade/internal/strategy"
	"cryptotrade/internal/trader"
)

type exchangeClient interface {
	GetBalances(ctx context.Context) (portfolio.Balances, error)
	GetRate(ctx context.Context, gold, alt string) (float64, error)
	GetFee(ctx context.Context, gold, alt string) (float64, error)
	GetOpenOrders(ctx context.Context) (exchange.OpenOrders, error)
	CancelOrder(ctx context.Context, order exchange.Order) error
	Buy(ctx context.Context, gold, alt string, rate, amount float64) (string, error)
	Sell(ctx context.Context, gold, alt string, rate, amount float64) (string, error)
}

type journal interface {
	RecordOrder(ctx context.Context, rec store.OrderRecord) error
}

// ConfirmFunc 在提交前向用户展示待执行操作并取得确认。
type ConfirmFunc func(ops []*portfolio.Op) (bool, error)

// Options 控制实盘执行行为。
type Options struct {
	Gold string
	// FeeMode 传递给计划器的手续费计入方式。
	FeeMode trader.FeeMode
	// MinOrderSize 以下的订单视为可忽略，直接标记完成。
	MinOrderSize float64
	// OutbidIncrement 为加价抢单时的最小汇率变动单位。
	OutbidIncrement float64
	// SlippageTolerance 限制加价相对计划价的偏移。
	SlippageTolerance float64
	PollInterval      time.Duration
	WaitBudget        time.Duration
	// MaxCycles 限制超时后重新规划的轮次，0为不限制。
	MaxCycles int
	// CancelAttempts 为单笔撤单的重试预算。
	CancelAttempts int
}

func (o Options) withDefaults() Options {
	if o.MinOrderSize <= 0 {
		o.MinOrderSize = 0.0001
	}
	if o.OutbidIncrement <= 0 {
		o.OutbidIncrement = 0.00000001
	}
	if o.SlippageTolerance <= 0 {
		o.SlippageTolerance = 0.002
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.WaitBudget <= 0 {
		o.WaitBudget = 300 * time.Second
	}
	if o.CancelAttempts <= 0 {
		o.CancelAttempts = 3
	}
	return o
}

// Loop 驱动一次实盘再平衡：撤单、规划、确认、提交、轮询，
// 等待预算耗尽后放弃旧计划、按最新行情重新规划。
type Loop struct {
	client  exchangeClient
	policy  strategy.Policy
	journal journal
	confirm ConfirmFunc
	logger  *zap.Logger
	opts    Options

	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop 创建执行循环。journal 与 confirm 均可为空：
// journal 为空时不记日志，confirm 为空时跳过人工确认。
func NewLoop(client exchangeClient, policy strategy.Policy, journal journal, confirm ConfirmFunc, opts Options, logger *zap.Logger) (*Loop, error) {
	if client == nil {
		return nil, fmt.Errorf("execution: client 不能为空")
	}
	if policy == nil {
		return nil, fmt.Errorf("execution: policy 不能为空")
	}
	if opts.Gold == "" {
		return nil, fmt.Errorf("execution: 本位币不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		client:  client,
		policy:  policy,
		journal: journal,
		confirm: confirm,
		logger:  logger,
		opts:    opts.withDefaults(),
		sleep:   sleepContext,
	}, nil
}

// Run 反复执行再平衡周期直到全部订单完成、用户拒绝确认或超出轮次限制。
func (l *Loop) Run(ctx context.Context, targets portfolio.Weights) error {
	for cycle := 1; ; cycle++ {
		if l.opts.MaxCycles > 0 && cycle > l.opts.MaxCycles {
			return fmt.Errorf("execution: 重新规划 %d 轮后仍未完成", l.opts.MaxCycles)
		}

		done, err := l.runCycle(ctx, targets, cycle)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		// 行情已经变化，旧计划作废比续用更安全。
		l.logger.Info("等待预算耗尽，重新规划", zap.Int("cycle", cycle))
	}
}

func (l *Loop) runCycle(ctx context.Context, targets portfolio.Weights, cycle int) (bool, error) {
	open, err := l.client.GetOpenOrders(ctx)
	if err != nil {
		return false, err
	}
	if err := cancelOrders(ctx, l.client, open, l.opts.CancelAttempts, l.journal, cycle, l.logger); err != nil {
		return false, err
	}

	ops, err := l.plan(ctx, targets)
	if err != nil {
		return false, err
	}
	if len(ops) == 0 {
		l.logger.Info("组合已达目标权重，无需交易", zap.Int("cycle", cycle))
		return true, nil
	}

	if l.confirm != nil {
		ok, err := l.confirm(ops)
		if err != nil {
			return false, err
		}
		if !ok {
			l.logger.Info("用户拒绝执行，终止本次交易")
			return true, nil
		}
	}

	if err := l.submitPending(ctx, ops, cycle); err != nil {
		return false, err
	}

	return l.poll(ctx, ops, cycle)
}

// plan 按最新余额与行情生成当前tick的操作列表（卖单在前）。
func (l *Loop) plan(ctx context.Context, targets portfolio.Weights) ([]*portfolio.Op, error) {
	balances, err := l.client.GetBalances(ctx)
	if err != nil {
		return nil, err
	}

	rates := make(portfolio.PriceSeries, len(targets)+1)
	rates[l.opts.Gold] = []float64{1}
	var firstAlt string
	for _, currency := range targets.Currencies() {
		if currency == l.opts.Gold {
			continue
		}
		if firstAlt == "" {
			firstAlt = currency
		}
		rate, err := l.client.GetRate(ctx, l.opts.Gold, currency)
		if err != nil {
			return nil, err
		}
		rates[currency] = []float64{rate}
	}

	// 没有行情的持仓无法估值，从本轮规划中剔除。
	priced := make(portfolio.Balances, len(balances))
	for currency, amount := range balances {
		if _, ok := rates[currency]; ok {
			priced[currency] = amount
		} else {
			l.logger.Debug("忽略无行情持仓", zap.String("currency", currency))
		}
	}

	var fee float64
	if firstAlt != "" {
		fee, err = l.client.GetFee(ctx, l.opts.Gold, firstAlt)
		if err != nil {
			return nil, err
		}
	}

	engine, err := trader.NewEngine(l.policy, trader.Planner{Fee: fee, Mode: l.opts.FeeMode}, l.opts.Gold, l.logger)
	if err != nil {
		return nil, err
	}

	plan, _, err := engine.Run(ctx, targets, priced, rates)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, nil
	}
	// 只取最近一个tick的计划。
	return plan[len(plan)-1].Ops, nil
}

// submitPending 按先卖后买的顺序提交所有未调度的操作。
// 单笔指令被拒绝只记录并继续，留待下次轮询重试。
func (l *Loop) submitPending(ctx context.Context, ops []*portfolio.Op, cycle int) error {
	for _, op := range ops {
		if op.Scheduled {
			continue
		}

		if op.GoldAmount < l.opts.MinOrderSize {
			op.Scheduled = true
			l.logger.Info("订单规模低于最小可交易额，忽略",
				zap.String("side", string(op.Side)),
				zap.String("alt", op.Alt),
				zap.Float64("gold_amount", op.GoldAmount),
			)
			l.record(ctx, store.OrderRecord{
				Cycle:      cycle,
				Side:       string(op.Side),
				Alt:        op.Alt,
				AltAmount:  op.AltAmount,
				GoldAmount: op.GoldAmount,
				Rate:       op.Rate,
				Status:     store.StatusSkipped,
			})
			continue
		}

		rate := l.chooseRate(ctx, op)

		var orderID string
		var err error
		if op.Side == portfolio.SideSell {
			orderID, err = l.client.Sell(ctx, l.opts.Gold, op.Alt, rate, op.AltAmount)
		} else {
			orderID, err = l.client.Buy(ctx, l.opts.Gold, op.Alt, rate, op.AltAmount)
		}
		if err != nil {
			if exchange.IsCommand(err) {
				l.logger.Warn("下单被拒绝，留待下次轮询重试",
					zap.String("side", string(op.Side)),
					zap.String("alt", op.Alt),
					zap.Float64("alt_amount", op.AltAmount),
					zap.Error(err),
				)
				continue
			}
			return err
		}

		op.Scheduled = true
		l.logger.Info("已提交订单",
			zap.String("order_id", orderID),
			zap.String("side", string(op.Side)),
			zap.String("alt", op.Alt),
			zap.Float64("alt_amount", op.AltAmount),
			zap.Float64("rate", rate),
		)
		l.record(ctx, store.OrderRecord{
			Cycle:      cycle,
			Side:       string(op.Side),
			Alt:        op.Alt,
			AltAmount:  op.AltAmount,
			GoldAmount: op.GoldAmount,
			Rate:       rate,
			OrderRef:   orderID,
			Status:     store.StatusPlaced,
		})
	}
	return nil
}

// chooseRate 在当前最优价上加一个最小变动单位抢单；
// 偏离计划价超过滑点容忍时回退到计划价，不追价。
func (l *Loop) chooseRate(ctx context.Context, op *portfolio.Op) float64 {
	best, err := l.client.GetRate(ctx, l.opts.Gold, op.Alt)
	if err != nil {
		l.logger.Warn("获取最新行情失败，使用计划价",
			zap.String("alt", op.Alt),
			zap.Error(err),
		)
		return op.Rate
	}

	candidate := best + l.opts.OutbidIncrement
	if op.Side == portfolio.SideSell {
		candidate = best - l.opts.OutbidIncrement
	}
	if candidate <= 0 || op.Rate <= 0 {
		return op.Rate
	}
	if math.Abs(candidate-op.Rate)/op.Rate > l.opts.SlippageTolerance {
		l.logger.Debug("加价超出滑点容忍，回退计划价",
			zap.String("alt", op.Alt),
			zap.Float64("candidate", candidate),
			zap.Float64("planned", op.Rate),
		)
		return op.Rate
	}
	return candidate
}

// poll 按固定间隔等待成交：每次醒来先检查是否全部完成，再补提未调度操作。
// 返回 (true, nil) 表示整个交易运行成功结束；(false, nil) 表示预算耗尽需重新规划。
func (l *Loop) poll(ctx context.Context, ops []*portfolio.Op, cycle int) (bool, error) {
	var waited time.Duration
	for waited < l.opts.WaitBudget {
		if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
			return false, err
		}
		waited += l.opts.PollInterval

		open, err := l.client.GetOpenOrders(ctx)
		if err != nil {
			return false, err
		}
		if open.Count() == 0 && allScheduled(ops) {
			l.logger.Info("全部订单已完成",
				zap.Int("cycle", cycle),
				zap.Int("ops", len(ops)),
			)
			return true, nil
		}

		if err := l.submitPending(ctx, ops, cycle); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (l *Loop) record(ctx context.Context, rec store.OrderRecord) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordOrder(ctx, rec); err != nil {
		l.logger.Warn("写入订单日志失败", zap.Error(err))
	}
}

func allScheduled(ops []*portfolio.Op) bool {
	for _, op := range ops {
		if !op.Scheduled {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
