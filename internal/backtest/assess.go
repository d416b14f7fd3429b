package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cryptotrade/internal/exchange"
	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/strategy"
	"cryptotrade/internal/trader"
)

type marketClient interface {
	GetBalances(ctx context.Context) (portfolio.Balances, error)
	GetFee(ctx context.Context, gold, alt string) (float64, error)
	ClosingRates(ctx context.Context, gold string, currencies []string, period int64, start, end time.Time) (portfolio.PriceSeries, error)
	Worth(ctx context.Context, gold string, balances portfolio.Balances) (float64, error)
}

// Params 为一次策略评估的输入。
type Params struct {
	Gold    string
	Targets portfolio.Weights
	// Balances 为空时从交易所获取。
	Balances portfolio.Balances
	// PeriodDays 为回看窗口长度（天）。
	PeriodDays float64
	// Interval 为tick间隔（秒），必须是交易所支持的蜡烛周期。
	Interval int64
	FeeMode  trader.FeeMode
}

// Result 汇总评估结果：持有不动与执行策略两种情形下的新旧价值对比。
type Result struct {
	Strategy     string
	PeriodDays   float64
	Interval     int64
	Ticks        int
	OldWorthGold float64
	NewWorthGold float64
	OldWorthUSD  float64
	NewWorthUSD  float64
	ProfitPct    float64
	Currencies   []CurrencyStat
}

// Assess 在历史汇率序列上重放策略并对比前后组合价值。
func Assess(ctx context.Context, client marketClient, policy strategy.Policy, params Params, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Gold == "" {
		return Result{}, fmt.Errorf("backtest: 本位币不能为空")
	}
	if !exchange.ValidPeriod(params.Interval) {
		return Result{}, fmt.Errorf("backtest: tick间隔 %d 不是受支持的蜡烛周期", params.Interval)
	}
	if params.PeriodDays <= 0 {
		return Result{}, fmt.Errorf("backtest: 回看窗口 %v 必须为正", params.PeriodDays)
	}

	balances := params.Balances
	if balances == nil {
		fetched, err := client.GetBalances(ctx)
		if err != nil {
			return Result{}, err
		}
		balances = fetched
	}

	oldWorthGold, err := client.Worth(ctx, params.Gold, balances)
	if err != nil {
		return Result{}, err
	}
	oldWorthUSD, err := client.Worth(ctx, "USD", balances)
	if err != nil {
		return Result{}, err
	}
	if oldWorthGold <= 0 {
		return Result{}, fmt.Errorf("backtest: 组合当前价值非正，无法评估")
	}

	now := time.Now().UTC()
	start := now.Add(-time.Duration(params.PeriodDays * 24 * float64(time.Hour)))

	rates, err := client.ClosingRates(ctx, params.Gold, params.Targets.Currencies(), params.Interval, start, now)
	if err != nil {
		return Result{}, err
	}

	var firstAlt string
	for _, currency := range params.Targets.Currencies() {
		if currency != params.Gold {
			firstAlt = currency
			break
		}
	}
	var fee float64
	if firstAlt != "" {
		fee, err = client.GetFee(ctx, params.Gold, firstAlt)
		if err != nil {
			return Result{}, err
		}
	}

	// 评估只对目标币种重放，持仓里无行情的币种按原样保留估值。
	replayed := make(portfolio.Balances, len(balances))
	rest := make(portfolio.Balances, len(balances))
	for currency, amount := range balances {
		if _, ok := rates[currency]; ok {
			replayed[currency] = amount
		} else {
			rest[currency] = amount
		}
	}

	engine, err := trader.NewEngine(policy, trader.Planner{Fee: fee, Mode: params.FeeMode}, params.Gold, logger)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	_, finalBalances, err := engine.Run(ctx, params.Targets, replayed, rates)
	if err != nil {
		return Result{}, err
	}

	for currency, amount := range rest {
		finalBalances[currency] = amount
	}

	newWorthGold, err := client.Worth(ctx, params.Gold, finalBalances)
	if err != nil {
		return Result{}, err
	}
	newWorthUSD, err := client.Worth(ctx, "USD", finalBalances)
	if err != nil {
		return Result{}, err
	}

	profit := (newWorthGold - oldWorthGold) / oldWorthGold * 100

	logger.Info("策略评估完成",
		zap.String("strategy", policy.Name()),
		zap.Int("ticks", rates.Len()),
		zap.Float64("profit_pct", profit),
		zap.Duration("elapsed", time.Since(started)),
	)

	return Result{
		Strategy:     policy.Name(),
		PeriodDays:   params.PeriodDays,
		Interval:     params.Interval,
		Ticks:        rates.Len(),
		OldWorthGold: oldWorthGold,
		NewWorthGold: newWorthGold,
		OldWorthUSD:  oldWorthUSD,
		NewWorthUSD:  newWorthUSD,
		ProfitPct:    profit,
		Currencies:   currencyStats(params.Gold, rates, params.Interval),
	}, nil
}
