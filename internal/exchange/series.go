package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cryptotrade/internal/portfolio"
)

// ClosingRates 并发拉取各币种的K线并以收盘价构建对齐的汇率序列。
// 本位币的序列恒为1。任一币种长度不一致视为致命输入错误。
func (c *Client) ClosingRates(ctx context.Context, gold string, currencies []string, period int64, start, end time.Time) (portfolio.PriceSeries, error) {
	return c.rateSeries(ctx, gold, currencies, period, start, end, func(candle Candle) float64 {
		return candle.Close
	})
}

// OpeningRates 与 ClosingRates 相同，但使用开盘价。
func (c *Client) OpeningRates(ctx context.Context, gold string, currencies []string, period int64, start, end time.Time) (portfolio.PriceSeries, error) {
	return c.rateSeries(ctx, gold, currencies, period, start, end, func(candle Candle) float64 {
		return candle.Open
	})
}

func (c *Client) rateSeries(ctx context.Context, gold string, currencies []string, period int64, start, end time.Time, extract func(Candle) float64) (portfolio.PriceSeries, error) {
	series := make(portfolio.PriceSeries, len(currencies)+1)
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, currency := range currencies {
		if currency == gold {
			continue
		}
		currency := currency
		group.Go(func() error {
			candles, err := c.GetCandles(groupCtx, gold, currency, period, start, end)
			if err != nil {
				return fmt.Errorf("exchange: 拉取 %s K线失败: %w", currency, err)
			}
			rates := make([]float64, 0, len(candles))
			for _, candle := range candles {
				rates = append(rates, extract(candle))
			}
			mu.Lock()
			series[currency] = rates
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	length := -1
	for currency, rates := range series {
		if length < 0 {
			length = len(rates)
		} else if len(rates) != length {
			return nil, fmt.Errorf("exchange: 币种 %s 的序列长度 %d 与其他币种 %d 不一致",
				currency, len(rates), length)
		}
	}
	if length <= 0 {
		return nil, fmt.Errorf("exchange: 时间窗口内无K线数据")
	}

	goldRates := make([]float64, length)
	for i := range goldRates {
		goldRates[i] = 1
	}
	series[gold] = goldRates

	c.logger.Debug("汇率序列构建完成",
		zap.String("gold", gold),
		zap.Int("currencies", len(series)),
		zap.Int("ticks", length),
	)
	return series, nil
}
