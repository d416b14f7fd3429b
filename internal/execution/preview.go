package execution

import (
	"fmt"
	"strings"

	"cryptotrade/internal/exchange"
	"cryptotrade/internal/portfolio"
)

// RenderOps 将待执行操作渲染为给用户确认的文本。
func RenderOps(gold string, ops []*portfolio.Op) string {
	var b strings.Builder
	b.WriteString("The following trade orders are to be scheduled:\n")
	for _, op := range ops {
		if op.Side == portfolio.SideSell {
			fmt.Fprintf(&b, " * sell %.4f %s for %.4f %s (rate: %.8f)\n",
				op.AltAmount, op.Alt, op.GoldAmount, gold, op.Rate)
		} else {
			fmt.Fprintf(&b, " * buy %.4f %s with %.4f %s (rate: %.8f)\n",
				op.AltAmount, op.Alt, op.GoldAmount, gold, op.Rate)
		}
	}
	return b.String()
}

// RenderOpenOrders 将待撤销挂单渲染为给用户确认的文本。
func RenderOpenOrders(orders exchange.OpenOrders) string {
	var b strings.Builder
	b.WriteString("The following trade orders are to be cancelled:\n")
	for pair, pairOrders := range orders {
		for _, order := range pairOrders {
			fmt.Fprintf(&b, " * %s #%s: %.4f %s (rate: %.8f)\n",
				order.Side, order.ID, order.Amount, pair, order.Rate)
		}
	}
	return b.String()
}
