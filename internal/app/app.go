package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cryptotrade/internal/backtest"
	"cryptotrade/internal/config"
	"cryptotrade/internal/exchange"
	"cryptotrade/internal/execution"
	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/store"
	"cryptotrade/internal/strategy"
	"cryptotrade/internal/trader"
)

// App 聚合核心依赖并暴露各CLI子命令的执行入口。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// AssessArgs 为 assess 子命令的参数。
type AssessArgs struct {
	Targets    []string
	Balances   []string
	Strategy   string
	PeriodDays float64
	Interval   int64
}

// Assess 在历史数据上重放策略并打印评估表格。
func (a *App) Assess(ctx context.Context, args AssessArgs) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	targets, err := a.resolveTargets(args.Targets)
	if err != nil {
		return err
	}
	policy, err := a.resolvePolicy(args.Strategy)
	if err != nil {
		return err
	}
	balances, err := parseBalances(args.Balances)
	if err != nil {
		return err
	}

	result, err := backtest.Assess(ctx, client, policy, backtest.Params{
		Gold:       a.cfg.Trading.Gold,
		Targets:    targets,
		Balances:   balances,
		PeriodDays: args.PeriodDays,
		Interval:   args.Interval,
		FeeMode:    trader.FeeMode(a.cfg.Trading.FeeMode),
	}, a.logger)
	if err != nil {
		return err
	}

	fmt.Print(backtest.RenderTable(result))

	if err := a.store.RecordAssessment(ctx, store.AssessmentRecord{
		Strategy:     result.Strategy,
		PeriodDays:   result.PeriodDays,
		IntervalSecs: result.Interval,
		OldWorthGold: result.OldWorthGold,
		NewWorthGold: result.NewWorthGold,
		OldWorthUSD:  result.OldWorthUSD,
		NewWorthUSD:  result.NewWorthUSD,
		ProfitPct:    result.ProfitPct,
	}); err != nil {
		a.logger.Warn("写入评估日志失败", zap.Error(err))
	}

	return nil
}

// ExecuteArgs 为 execute 子命令的参数。
type ExecuteArgs struct {
	Targets  []string
	Strategy string
	Force    bool
}

// Execute 按策略对实盘组合执行一次再平衡。
func (a *App) Execute(ctx context.Context, args ExecuteArgs) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	targets, err := a.resolveTargets(args.Targets)
	if err != nil {
		return err
	}
	policy, err := a.resolvePolicy(args.Strategy)
	if err != nil {
		return err
	}

	var confirm execution.ConfirmFunc
	if !args.Force {
		gold := a.cfg.Trading.Gold
		confirm = func(ops []*portfolio.Op) (bool, error) {
			fmt.Print(execution.RenderOps(gold, ops))
			return promptProceed()
		}
	}

	loop, err := execution.NewLoop(client, policy, a.store, confirm, execution.Options{
		Gold:              a.cfg.Trading.Gold,
		FeeMode:           trader.FeeMode(a.cfg.Trading.FeeMode),
		MinOrderSize:      a.cfg.Execution.MinOrderSize,
		OutbidIncrement:   a.cfg.Execution.OutbidIncrement,
		SlippageTolerance: a.cfg.Execution.SlippageTolerance,
		PollInterval:      a.cfg.Execution.PollInterval,
		WaitBudget:        a.cfg.Execution.WaitBudget,
		MaxCycles:         a.cfg.Execution.MaxCycles,
	}, a.logger)
	if err != nil {
		return err
	}

	return loop.Run(ctx, targets)
}

// Clear 撤销交易所上的全部挂单。
func (a *App) Clear(ctx context.Context, force bool) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	var confirm execution.ConfirmOrdersFunc
	if !force {
		confirm = func(orders exchange.OpenOrders) (bool, error) {
			fmt.Print(execution.RenderOpenOrders(orders))
			return promptProceed()
		}
	}

	return execution.Clear(ctx, client, a.store, confirm, a.logger)
}

// Worth 打印以本位币与美元计的持仓总价值。
func (a *App) Worth(ctx context.Context) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	balances, err := client.GetBalances(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-10s %18s\n", "Currency", "Worth")
	for _, gold := range []string{a.cfg.Trading.Gold, "USD"} {
		worth, err := client.Worth(ctx, gold, balances)
		if err != nil {
			return err
		}
		fmt.Printf("%-10s %18.8f\n", gold, worth)
	}
	return nil
}

func (a *App) newClient() (*exchange.Client, error) {
	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}
	return client, nil
}

func (a *App) resolvePolicy(name string) (strategy.Policy, error) {
	if name == "" {
		name = a.cfg.Trading.Strategy
	}
	return strategy.New(name, strategy.Options{PAMRCap: a.cfg.Trading.PAMRCap})
}

// resolveTargets 优先使用命令行目标，否则回退到配置文件。
func (a *App) resolveTargets(flags []string) (portfolio.Weights, error) {
	if len(flags) > 0 {
		return parseTargets(flags)
	}
	if len(a.cfg.Trading.Targets) == 0 {
		return nil, fmt.Errorf("app: 未配置目标权重，使用 -t CURRENCY=WEIGHT 或配置 trading.targets")
	}
	targets := make(portfolio.Weights, len(a.cfg.Trading.Targets))
	for currency, weight := range a.cfg.Trading.Targets {
		targets[normalizeCurrency(currency)] = weight
	}
	if err := targets.CheckSum(); err != nil {
		return nil, fmt.Errorf("app: trading.targets 配置无效: %w", err)
	}
	return targets, nil
}
