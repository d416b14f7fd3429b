package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
	// TakerFee 大于0时覆盖交易所返回的吃单费率。
	TakerFee float64     `mapstructure:"taker_fee"`
	Retry    RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制交易所调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TradingConfig 描述再平衡参数。
type TradingConfig struct {
	// Gold 为本位币，所有权重与价值都以它计价。
	Gold     string             `mapstructure:"gold"`
	Strategy string             `mapstructure:"strategy"`
	Targets  map[string]float64 `mapstructure:"targets"`
	// FeeMode 取值 both / buy / sell。
	FeeMode string  `mapstructure:"fee_mode"`
	PAMRCap float64 `mapstructure:"pamr_cap"`
}

// ExecutionConfig 控制实盘下单行为。
type ExecutionConfig struct {
	// MinOrderSize 为交易所最小可交易规模（以本位币计）。
	MinOrderSize float64 `mapstructure:"min_order_size"`
	// OutbidIncrement 为汇率最小变动单位，用于加价抢单。
	OutbidIncrement float64 `mapstructure:"outbid_increment"`
	// SlippageTolerance 为加价相对计划价的最大偏移。
	SlippageTolerance float64       `mapstructure:"slippage_tolerance"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	WaitBudget        time.Duration `mapstructure:"wait_budget"`
	// MaxCycles 限制超时重新规划的轮次，0为不限制。
	MaxCycles int `mapstructure:"max_cycles"`
}

// DatabaseConfig 管理交易日志数据库。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验，配置错误在任何交易所交互之前暴露。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.TakerFee < 0 || c.Exchange.TakerFee >= 1 {
		err = multierr.Append(err, errors.New("exchange.taker_fee 必须位于[0,1)"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Trading.Gold == "" {
		err = multierr.Append(err, errors.New("trading.gold 不能为空"))
	}
	if c.Trading.Strategy == "" {
		err = multierr.Append(err, errors.New("trading.strategy 不能为空"))
	}
	switch c.Trading.FeeMode {
	case "both", "buy", "sell":
	default:
		err = multierr.Append(err, errors.New("trading.fee_mode 必须为 both/buy/sell 之一"))
	}
	if len(c.Trading.Targets) > 0 {
		var total float64
		for currency, weight := range c.Trading.Targets {
			if weight < 0 {
				err = multierr.Append(err, fmt.Errorf("trading.targets.%s 不能为负", currency))
			}
			total += weight
		}
		if math.Abs(total-1) > 1e-5 {
			err = multierr.Append(err, fmt.Errorf("trading.targets 权重之和 %v 必须等于1", total))
		}
	}
	if c.Trading.PAMRCap < 0 {
		err = multierr.Append(err, errors.New("trading.pamr_cap 不能为负"))
	}
	if c.Execution.MinOrderSize <= 0 {
		err = multierr.Append(err, errors.New("execution.min_order_size 必须大于0"))
	}
	if c.Execution.OutbidIncrement <= 0 {
		err = multierr.Append(err, errors.New("execution.outbid_increment 必须大于0"))
	}
	if c.Execution.SlippageTolerance <= 0 || c.Execution.SlippageTolerance > 0.2 {
		err = multierr.Append(err, errors.New("execution.slippage_tolerance 应位于(0,0.2]"))
	}
	if c.Execution.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("execution.poll_interval 必须大于0"))
	}
	if c.Execution.WaitBudget < c.Execution.PollInterval {
		err = multierr.Append(err, errors.New("execution.wait_budget 不能小于 poll_interval"))
	}
	if c.Execution.MaxCycles < 0 {
		err = multierr.Append(err, errors.New("execution.max_cycles 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
