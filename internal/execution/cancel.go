package execution

import (
	"context"

	"go.uber.org/zap"

	"cryptotrade/internal/exchange"
	"cryptotrade/internal/store"
)

type orderCanceller interface {
	GetOpenOrders(ctx context.Context) (exchange.OpenOrders, error)
	CancelOrder(ctx context.Context, order exchange.Order) error
}

// ConfirmOrdersFunc 在撤单前向用户展示待撤销挂单并取得确认。
type ConfirmOrdersFunc func(orders exchange.OpenOrders) (bool, error)

// Clear 撤销交易所上的全部挂单，供 clear 子命令使用。
func Clear(ctx context.Context, client orderCanceller, journal journal, confirm ConfirmOrdersFunc, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	orders, err := client.GetOpenOrders(ctx)
	if err != nil {
		return err
	}
	if orders.Count() == 0 {
		logger.Info("没有需要撤销的挂单")
		return nil
	}

	if confirm != nil {
		ok, err := confirm(orders)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("用户拒绝撤单，终止")
			return nil
		}
	}

	return cancelOrders(ctx, client, orders, 3, journal, 0, logger)
}

// cancelOrders 逐笔撤单，指令失败在预算内重试；
// 预算耗尽的订单视为已处理，不作为致命错误。
func cancelOrders(ctx context.Context, client orderCanceller, orders exchange.OpenOrders, attempts int, journal journal, cycle int, logger *zap.Logger) error {
	for pair, pairOrders := range orders {
		for _, order := range pairOrders {
			if err := cancelOne(ctx, client, order, attempts, logger); err != nil {
				return err
			}
			if journal != nil {
				rec := store.OrderRecord{
					Cycle:      cycle,
					Side:       string(order.Side),
					Alt:        pair,
					AltAmount:  order.Amount,
					GoldAmount: order.Total,
					Rate:       order.Rate,
					OrderRef:   order.ID,
					Status:     store.StatusCancelled,
				}
				if err := journal.RecordOrder(ctx, rec); err != nil {
					logger.Warn("写入撤单日志失败", zap.Error(err))
				}
			}
		}
	}
	return nil
}

func cancelOne(ctx context.Context, client orderCanceller, order exchange.Order, attempts int, logger *zap.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := client.CancelOrder(ctx, order)
		if err == nil {
			logger.Info("已撤销挂单",
				zap.String("order_id", order.ID),
				zap.String("pair", order.Pair),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		if !exchange.IsCommand(err) {
			return err
		}
		lastErr = err
		logger.Warn("撤单被拒绝，重试",
			zap.String("order_id", order.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	logger.Warn("撤单重试预算耗尽，视为已处理",
		zap.String("order_id", order.ID),
		zap.Error(lastErr),
	)
	return nil
}
