package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cryptotrade/internal/app"
	"cryptotrade/internal/config"
	"cryptotrade/internal/log"
	"cryptotrade/internal/store"
)

const usage = `Usage: ct [-config PATH] COMMAND [OPTIONS]

Commands:
  assess    replay a strategy against historical rates
  execute   rebalance the live portfolio towards target weights
  clear     cancel all open orders
  worth     print total portfolio worth
`

// stringList 支持重复出现的命令行参数（-t a=1 -t b=2）。
type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ct := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, ct, command, args); err != nil {
		logger.Error("命令执行失败", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, ct *app.App, command string, args []string) error {
	switch command {
	case "assess":
		return runAssess(ctx, ct, args)
	case "execute":
		return runExecute(ctx, ct, args)
	case "clear":
		return runClear(ctx, ct, args)
	case "worth":
		return runWorth(ctx, ct, args)
	default:
		flag.Usage()
		return fmt.Errorf("未知命令: %s", command)
	}
}

func runAssess(ctx context.Context, ct *app.App, args []string) error {
	fs := flag.NewFlagSet("assess", flag.ExitOnError)
	var targets, balances stringList
	fs.Var(&targets, "t", "目标权重，格式 CURRENCY=WEIGHT，可重复")
	fs.Var(&balances, "b", "虚拟余额，格式 CURRENCY=AMOUNT，可重复（默认使用实盘余额）")
	strategyName := fs.String("s", "", "策略名称（默认取配置 trading.strategy）")
	periodDays := fs.Float64("p", 1, "回放周期（天）")
	interval := fs.Int64("i", 1800, "K线间隔（秒）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return ct.Assess(ctx, app.AssessArgs{
		Targets:    targets,
		Balances:   balances,
		Strategy:   *strategyName,
		PeriodDays: *periodDays,
		Interval:   *interval,
	})
}

func runExecute(ctx context.Context, ct *app.App, args []string) error {
	fs := flag.NewFlagSet("execute", flag.ExitOnError)
	var targets stringList
	fs.Var(&targets, "t", "目标权重，格式 CURRENCY=WEIGHT，可重复")
	strategyName := fs.String("s", "", "策略名称（默认取配置 trading.strategy）")
	force := fs.Bool("force", false, "跳过下单前的人工确认")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return ct.Execute(ctx, app.ExecuteArgs{
		Targets:  targets,
		Strategy: *strategyName,
		Force:    *force,
	})
}

func runClear(ctx context.Context, ct *app.App, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	force := fs.Bool("force", false, "跳过撤单前的人工确认")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return ct.Clear(ctx, *force)
}

func runWorth(ctx context.Context, ct *app.App, args []string) error {
	fs := flag.NewFlagSet("worth", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return ct.Worth(ctx)
}
