package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"cryptotrade/internal/config"
	"cryptotrade/internal/portfolio"
)

// 无法从交易所取得费率时使用的吃单费率。
const defaultTakerFee = 0.0025

// 行情缓存有效期，与一次再平衡周期内多次取价的节奏匹配。
const tickerTTL = time.Minute

// Client 负责与交易所交互并实现重试机制。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Poloniex

	marketsMu     sync.Mutex
	marketsLoaded bool

	tickerMu    sync.Mutex
	tickerCache map[string]cachedRate
}

type cachedRate struct {
	rate float64
	at   time.Time
}

// NewClient 构造 Poloniex 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewPoloniex(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:         cfg,
		logger:      logger,
		exchange:    ex,
		tickerCache: make(map[string]cachedRate),
	}, nil
}

// GetBalances 返回全部正持仓，币种统一为大写。
func (c *Client) GetBalances(ctx context.Context) (portfolio.Balances, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make(map[string]float64, len(raw.Total))
	for currency, total := range raw.Total {
		if total != nil && *total > 0 {
			res[currency] = *total
		}
	}
	return portfolio.NewBalances(res), nil
}

// GetRate 返回币种相对本位币的最新成交价，带一分钟缓存。
func (c *Client) GetRate(ctx context.Context, gold, alt string) (float64, error) {
	symbol := pairSymbol(gold, alt)

	c.tickerMu.Lock()
	if cached, ok := c.tickerCache[symbol]; ok && time.Since(cached.at) < tickerTTL {
		c.tickerMu.Unlock()
		return cached.rate, nil
	}
	c.tickerMu.Unlock()

	var ticker ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		ticker = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	rate := derefFloat(ticker.Last)
	if rate <= 0 {
		bid := derefFloat(ticker.Bid)
		ask := derefFloat(ticker.Ask)
		if bid > 0 && ask > 0 {
			rate = (bid + ask) / 2
		}
	}
	if rate <= 0 {
		return 0, fmt.Errorf("exchange: 交易对 %s 无有效成交价", symbol)
	}

	c.tickerMu.Lock()
	c.tickerCache[symbol] = cachedRate{rate: rate, at: time.Now()}
	c.tickerMu.Unlock()

	return rate, nil
}

// GetCandles 获取指定周期与时间窗口的K线数据。
func (c *Client) GetCandles(ctx context.Context, gold, alt string, period int64, start, end time.Time) ([]Candle, error) {
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("exchange: 不支持的蜡烛周期 %d", period)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("exchange: 时间窗口无效: %v 至 %v", start, end)
	}

	symbol := pairSymbol(gold, alt)
	timeframe := timeframeForPeriod(period)
	limit := (end.Unix()-start.Unix())/period + 1

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVSince(start.UnixMilli()),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		if ts.After(end) {
			break
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

// GetFee 返回吃单费率，配置覆盖优先于交易所返回值。
func (c *Client) GetFee(ctx context.Context, gold, alt string) (float64, error) {
	if c.cfg.TakerFee > 0 {
		return c.cfg.TakerFee, nil
	}

	symbol := pairSymbol(gold, alt)
	var fee ccxt.TradingFeeInterface
	err := c.callWithRetry(ctx, "fetch_trading_fee", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchTradingFee(symbol)
		if err != nil {
			return err
		}
		fee = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	taker := derefFloat(fee.Taker)
	if taker <= 0 {
		c.logger.Warn("交易所未返回吃单费率，使用默认值",
			zap.String("symbol", symbol),
			zap.Float64("fee", defaultTakerFee),
		)
		taker = defaultTakerFee
	}
	return taker, nil
}

// GetOpenOrders 返回按交易对归组的全部挂单。
func (c *Client) GetOpenOrders(ctx context.Context) (OpenOrders, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOpenOrders()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make(OpenOrders)
	for _, order := range raw {
		pair := derefString(order.Symbol)
		side := portfolio.SideBuy
		if strings.EqualFold(derefString(order.Side), "sell") {
			side = portfolio.SideSell
		}
		amount := derefFloat(order.Remaining)
		if amount <= 0 {
			amount = derefFloat(order.Amount)
		}
		rate := derefFloat(order.Price)
		res[pair] = append(res[pair], Order{
			ID:     derefString(order.Id),
			Pair:   pair,
			Side:   side,
			Rate:   rate,
			Amount: amount,
			Total:  amount * rate,
		})
	}
	return res, nil
}

// CancelOrder 撤销一条挂单。指令被拒绝时返回 ErrCommand。
func (c *Client) CancelOrder(ctx context.Context, order Order) error {
	return c.callWithRetry(ctx, "cancel_order", func() error {
		_, err := c.exchange.CancelOrder(order.ID, ccxt.WithCancelOrderSymbol(order.Pair))
		return err
	})
}

// Buy 以指定汇率买入山寨币，返回订单号。
func (c *Client) Buy(ctx context.Context, gold, alt string, rate, amount float64) (string, error) {
	return c.placeOrder(ctx, gold, alt, "buy", rate, amount)
}

// Sell 以指定汇率卖出山寨币，返回订单号。
func (c *Client) Sell(ctx context.Context, gold, alt string, rate, amount float64) (string, error) {
	return c.placeOrder(ctx, gold, alt, "sell", rate, amount)
}

func (c *Client) placeOrder(ctx context.Context, gold, alt, side string, rate, amount float64) (string, error) {
	symbol := pairSymbol(gold, alt)
	var order ccxt.Order
	err := c.callWithRetry(ctx, fmt.Sprintf("create_%s_order", side), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.CreateLimitOrder(symbol, side, amount, rate)
		if err != nil {
			return err
		}
		order = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return derefString(order.Id), nil
}

// Worth 以指定币种计算持仓总价值；balances 为空时从交易所获取。
// 美元价值通过BTC中转，与行情交易对保持一致。
func (c *Client) Worth(ctx context.Context, gold string, balances portfolio.Balances) (float64, error) {
	if balances == nil {
		fetched, err := c.GetBalances(ctx)
		if err != nil {
			return 0, err
		}
		balances = fetched
	}

	if gold == "USD" {
		btcWorth, err := c.Worth(ctx, "BTC", balances)
		if err != nil {
			return 0, err
		}
		usdRate, err := c.GetRate(ctx, "USD", "BTC")
		if err != nil {
			return 0, err
		}
		return btcWorth * usdRate, nil
	}

	var worth float64
	for currency, amount := range balances {
		if currency == gold {
			worth += amount
			continue
		}
		rate, err := c.GetRate(ctx, gold, currency)
		if err != nil {
			return 0, err
		}
		worth += amount * rate
	}
	return worth, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Name))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			// 交易所明确拒绝的指令，交由上层按订单粒度处理。
			return fmt.Errorf("%w: %v", ErrCommand, err), false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

// pairSymbol 构造 ccxt 统一交易对符号，USD 映射到 USDT 市场。
func pairSymbol(gold, alt string) string {
	if gold == "USD" {
		gold = "USDT"
	}
	if alt == "USD" {
		alt = "USDT"
	}
	return fmt.Sprintf("%s/%s", strings.ToUpper(alt), strings.ToUpper(gold))
}

func timeframeForPeriod(period int64) string {
	switch period {
	case 300:
		return "5m"
	case 900:
		return "15m"
	case 1800:
		return "30m"
	case 7200:
		return "2h"
	case 14400:
		return "4h"
	default:
		return "1d"
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
