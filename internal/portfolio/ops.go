package portfolio

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNegativeBalance 表示操作应用后出现负余额，
// 意味着计划或排序逻辑存在缺陷，属于致命错误。
var ErrNegativeBalance = errors.New("portfolio: 操作应用后余额为负")

// 浮点累积误差容差，低于该值的负余额按0处理。
const negativeTolerance = 1e-9

// SortOps 稳定排序操作列表：卖单全部排在买单之前，组内保持原有顺序。
// 买入需要本位币在手，先卖后买避免瞬时负余额。
func SortOps(ops []*Op) {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Side == SideSell && ops[j].Side != SideSell
	})
}

// ApplyOps 将操作按顺序应用到余额快照上并返回新的快照，原余额不被修改。
// 卖单减少山寨币、增加本位币，买单相反。任一余额为负即返回 ErrNegativeBalance。
func ApplyOps(balances Balances, gold string, ops []*Op) (Balances, error) {
	next := balances.Copy()
	for _, op := range ops {
		switch op.Side {
		case SideSell:
			next[op.Alt] -= op.AltAmount
			next[gold] += op.GoldAmount
		case SideBuy:
			next[op.Alt] += op.AltAmount
			next[gold] -= op.GoldAmount
		default:
			return nil, fmt.Errorf("portfolio: 未知操作方向 %q", op.Side)
		}
	}

	for currency, amount := range next {
		if amount < -negativeTolerance {
			return nil, fmt.Errorf("%w: %s=%v", ErrNegativeBalance, currency, amount)
		}
		if amount < 0 {
			next[currency] = 0
		}
	}
	return next, nil
}
