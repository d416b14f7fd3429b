package backtest

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/strategy"
	"cryptotrade/internal/trader"
)

// fakeMarket serves canned balances and rate series; worth is computed from
// the last tick of the series, with a fixed USD conversion for the rest.
type fakeMarket struct {
	balances portfolio.Balances
	rates    portfolio.PriceSeries
	fee      float64
	usdRate  float64

	balanceCalls int
}

func (f *fakeMarket) GetBalances(ctx context.Context) (portfolio.Balances, error) {
	f.balanceCalls++
	return f.balances.Copy(), nil
}

func (f *fakeMarket) GetFee(ctx context.Context, gold, alt string) (float64, error) {
	return f.fee, nil
}

func (f *fakeMarket) ClosingRates(ctx context.Context, gold string, currencies []string, period int64, start, end time.Time) (portfolio.PriceSeries, error) {
	res := make(portfolio.PriceSeries, len(f.rates))
	for currency, series := range f.rates {
		res[currency] = append([]float64(nil), series...)
	}
	return res, nil
}

func (f *fakeMarket) Worth(ctx context.Context, gold string, balances portfolio.Balances) (float64, error) {
	last := f.rates.Len() - 1
	var total float64
	for currency, amount := range balances {
		rate, ok := f.rates.Rate(currency, last)
		if !ok {
			rate = 1
		}
		total += amount * rate
	}
	if gold == "USD" {
		total *= f.usdRate
	}
	return total, nil
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		balances: portfolio.Balances{"BTC": 1000},
		rates: portfolio.PriceSeries{
			"BTC": {1, 1, 1},
			"ETH": {0.5, 1.0, 0.5},
			"LTC": {0.5, 0.25, 1.0},
		},
		usdRate: 30000,
	}
}

func TestAssess_ConstantRebalanceProfit(t *testing.T) {
	market := newFakeMarket()
	params := Params{
		Gold:       "BTC",
		Targets:    portfolio.Weights{"ETH": 0.5, "BTC": 0.25, "LTC": 0.25},
		PeriodDays: 1,
		Interval:   1800,
		FeeMode:    trader.FeeModeBoth,
	}

	res, err := Assess(context.Background(), market, &strategy.BCR{}, params, nil)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}

	if market.balanceCalls != 1 {
		t.Errorf("expected balances fetched once, got %d", market.balanceCalls)
	}
	if res.Ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", res.Ticks)
	}
	if math.Abs(res.OldWorthGold-1000) > 1e-9 {
		t.Errorf("expected old worth 1000 BTC, got %v", res.OldWorthGold)
	}
	// Final balances are 515.625 BTC + 2062.5 ETH @0.5 + 515.625 LTC @1.0.
	wantNew := 515.625 + 2062.5*0.5 + 515.625
	if math.Abs(res.NewWorthGold-wantNew) > 1e-6 {
		t.Errorf("expected new worth %v, got %v", wantNew, res.NewWorthGold)
	}
	wantProfit := (wantNew - 1000) / 1000 * 100
	if math.Abs(res.ProfitPct-wantProfit) > 1e-6 {
		t.Errorf("expected profit %v%%, got %v%%", wantProfit, res.ProfitPct)
	}
	if math.Abs(res.OldWorthUSD-1000*30000) > 1e-3 {
		t.Errorf("expected old USD worth via conversion, got %v", res.OldWorthUSD)
	}
}

func TestAssess_UsesProvidedBalances(t *testing.T) {
	market := newFakeMarket()
	params := Params{
		Gold:       "BTC",
		Targets:    portfolio.Weights{"ETH": 0.5, "BTC": 0.5},
		Balances:   portfolio.Balances{"BTC": 10},
		PeriodDays: 1,
		Interval:   300,
	}

	res, err := Assess(context.Background(), market, &strategy.BCR{}, params, nil)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	if market.balanceCalls != 0 {
		t.Errorf("expected no balance fetch with explicit balances, got %d", market.balanceCalls)
	}
	if math.Abs(res.OldWorthGold-10) > 1e-9 {
		t.Errorf("expected old worth 10, got %v", res.OldWorthGold)
	}
}

func TestAssess_KeepsUnpricedHoldings(t *testing.T) {
	market := newFakeMarket()
	market.balances = portfolio.Balances{"BTC": 100, "XRP": 50}

	params := Params{
		Gold:       "BTC",
		Targets:    portfolio.Weights{"ETH": 0.5, "BTC": 0.5},
		PeriodDays: 1,
		Interval:   900,
	}
	res, err := Assess(context.Background(), market, &strategy.BCR{}, params, nil)
	if err != nil {
		t.Fatalf("Assess returned error: %v", err)
	}
	// XRP has no series: it must not be traded, only carried through valuation.
	if res.NewWorthGold <= 0 {
		t.Errorf("expected positive new worth, got %v", res.NewWorthGold)
	}
}

func TestAssess_RejectsBadInputs(t *testing.T) {
	market := newFakeMarket()

	cases := []struct {
		name   string
		params Params
	}{
		{"empty gold", Params{Interval: 300, PeriodDays: 1}},
		{"bad interval", Params{Gold: "BTC", Interval: 1000, PeriodDays: 1}},
		{"zero period", Params{Gold: "BTC", Interval: 300}},
	}
	for _, tc := range cases {
		if _, err := Assess(context.Background(), market, &strategy.BCR{}, tc.params, nil); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	flat := []float64{1, 1, 1, 1}
	if vol := annualizedVolatility(flat, 1800); vol != 0 {
		t.Errorf("expected zero volatility for flat series, got %v", vol)
	}

	moving := []float64{1, 1.1, 1, 1.1, 1}
	if vol := annualizedVolatility(moving, 1800); vol <= 0 {
		t.Errorf("expected positive volatility, got %v", vol)
	}

	if vol := annualizedVolatility([]float64{1, 2}, 1800); vol != 0 {
		t.Errorf("expected zero for too-short series, got %v", vol)
	}
}

func TestRenderTable(t *testing.T) {
	res := Result{
		Strategy:     "bcr",
		PeriodDays:   1,
		Interval:     1800,
		Ticks:        48,
		OldWorthGold: 1,
		NewWorthGold: 1.1,
		OldWorthUSD:  30000,
		NewWorthUSD:  33000,
		ProfitPct:    10,
		Currencies: []CurrencyStat{
			{Currency: "ETH", LastRate: 0.05, SMA: 0.049, AnnualVolPct: 80},
		},
	}
	out := RenderTable(res)
	for _, want := range []string{"HODL", "w/strategy", "bcr", "ETH"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
