package store

import (
	"context"
	"fmt"
)

// 订单记录状态。
const (
	StatusPlaced    = "placed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// OrderRecord 为一条订单日志。
type OrderRecord struct {
	Cycle      int
	Side       string
	Alt        string
	AltAmount  float64
	GoldAmount float64
	Rate       float64
	OrderRef   string
	Status     string
}

// AssessmentRecord 为一次策略评估的结果日志。
type AssessmentRecord struct {
	Strategy     string
	PeriodDays   float64
	IntervalSecs int64
	OldWorthGold float64
	NewWorthGold float64
	OldWorthUSD  float64
	NewWorthUSD  float64
	ProfitPct    float64
}

// RecordOrder 写入一条订单日志。
func (s *Store) RecordOrder(ctx context.Context, rec OrderRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (cycle, side, alt, alt_amount, gold_amount, rate, order_ref, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Cycle, rec.Side, rec.Alt, rec.AltAmount, rec.GoldAmount, rec.Rate, rec.OrderRef, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("写入订单日志失败: %w", err)
	}
	return nil
}

// RecordAssessment 写入一次策略评估结果。
func (s *Store) RecordAssessment(ctx context.Context, rec AssessmentRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (strategy, period_days, interval_secs,
		 old_worth_gold, new_worth_gold, old_worth_usd, new_worth_usd, profit_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Strategy, rec.PeriodDays, rec.IntervalSecs,
		rec.OldWorthGold, rec.NewWorthGold, rec.OldWorthUSD, rec.NewWorthUSD, rec.ProfitPct,
	)
	if err != nil {
		return fmt.Errorf("写入评估日志失败: %w", err)
	}
	return nil
}
