package backtest

import (
	"fmt"
	"math"
	"strings"

	talib "github.com/markcheno/go-talib"

	"cryptotrade/internal/portfolio"
)

const smaWindow = 10

// CurrencyStat 为评估报告中单个币种的行情统计。
type CurrencyStat struct {
	Currency string
	// LastRate 为窗口内最后一个收盘汇率。
	LastRate float64
	// SMA 为收盘汇率的10期简单均线末值。
	SMA float64
	// AnnualVolPct 为收盘对收盘的年化波动率（百分比）。
	AnnualVolPct float64
}

// currencyStats 对每个非本位币序列计算均线与波动率。
func currencyStats(gold string, rates portfolio.PriceSeries, interval int64) []CurrencyStat {
	var stats []CurrencyStat
	for _, currency := range rates.Currencies() {
		if currency == gold {
			continue
		}
		series := rates[currency]
		if len(series) == 0 {
			continue
		}

		stat := CurrencyStat{
			Currency: currency,
			LastRate: series[len(series)-1],
		}
		if len(series) >= smaWindow {
			sma := talib.Sma(series, smaWindow)
			stat.SMA = sma[len(sma)-1]
		}
		stat.AnnualVolPct = annualizedVolatility(series, interval)
		stats = append(stats, stat)
	}
	return stats
}

// annualizedVolatility 用全样本对数收益标准差按tick间隔年化。
func annualizedVolatility(series []float64, interval int64) float64 {
	if len(series) < 3 || interval <= 0 {
		return 0
	}

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 || series[i] <= 0 {
			return 0
		}
		returns = append(returns, math.Log(series[i]/series[i-1]))
	}

	// 窗口等于样本长度时，末值即全样本标准差。
	std := talib.StdDev(returns, len(returns), 1.0)
	last := std[len(std)-1]

	ticksPerYear := float64(365*24*3600) / float64(interval)
	return last * math.Sqrt(ticksPerYear) * 100
}

// RenderTable 将评估结果渲染为文本表格，列对齐方式与 worth 输出一致。
func RenderTable(res Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "strategy: %s  period: %.1fd  interval: %ds  ticks: %d\n\n",
		res.Strategy, res.PeriodDays, res.Interval, res.Ticks)

	fmt.Fprintf(&b, "%-8s %16s %16s\n", "", "HODL", "w/strategy")
	fmt.Fprintf(&b, "%-8s %16.4f %16.4f\n", "USD", res.OldWorthUSD, res.NewWorthUSD)
	fmt.Fprintf(&b, "%-8s %16.8f %16.8f\n", "gold", res.OldWorthGold, res.NewWorthGold)
	fmt.Fprintf(&b, "%-8s %16s %15.2f%%\n", "%", "100%", 100+res.ProfitPct)

	if len(res.Currencies) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-8s %16s %16s %12s\n", "currency", "last", "sma", "vol/yr")
		for _, stat := range res.Currencies {
			fmt.Fprintf(&b, "%-8s %16.8f %16.8f %11.1f%%\n",
				stat.Currency, stat.LastRate, stat.SMA, stat.AnnualVolPct)
		}
	}

	return b.String()
}
