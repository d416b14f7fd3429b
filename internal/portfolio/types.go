package portfolio

// Side 表示交易方向，以非本位币一侧为基准：
// buy 为用本位币买入山寨币，sell 为将山寨币卖出换回本位币。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Op 描述一笔针对本位币的计划交易。
// Scheduled 仅在实盘执行中使用，表示订单已成功提交或被判定为可忽略。
type Op struct {
	Side       Side
	Alt        string
	AltAmount  float64
	GoldAmount float64
	Rate       float64
	Scheduled  bool
}

// PlanEntry 为单个tick产生的操作列表。
type PlanEntry struct {
	Tick int
	Ops  []*Op
}

// Plan 为一次再平衡运行产生的完整操作序列，返回后只读。
type Plan []PlanEntry
