package exchange

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrCommand 表示交易所拒绝了一条指令（下单、撤单等）。
	// 此类失败在单个订单粒度上可恢复，由调用方在预算内重试。
	ErrCommand = errors.New("exchange command rejected")
)

// IsRetryable 判断错误是否为可自动重试的瞬时故障。
func IsRetryable(err error) bool {
	if err == nil {
		return false
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
			return true
		default:
			return false
		}
	}

	return false
}

// IsCommand 判断错误是否为交易所指令失败。
func IsCommand(err error) bool {
	return errors.Is(err, ErrCommand)
}
