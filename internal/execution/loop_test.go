package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"cryptotrade/internal/exchange"
	"cryptotrade/internal/portfolio"
	"cryptotrade/internal/store"
	"cryptotrade/internal/strategy"
)

type orderCall struct {
	alt    string
	rate   float64
	amount float64
}

// mockClient scripts exchange behavior per method: queued responses are
// consumed first, then the defaults repeat.
type mockClient struct {
	balances    portfolio.Balances
	rates       map[string]float64
	liveRates   map[string]float64
	fee         float64
	openQueue   []exchange.OpenOrders
	openDefault exchange.OpenOrders
	cancelErrs  []error
	buyErrs     []error
	sellErrs    []error

	calls     []string
	buys      []orderCall
	sells     []orderCall
	cancelled []string
	rateCalls map[string]int
	orderSeq  int
}

func newMockClient() *mockClient {
	return &mockClient{
		balances:  portfolio.Balances{},
		rates:     map[string]float64{},
		liveRates: map[string]float64{},
		rateCalls: map[string]int{},
	}
}

func (m *mockClient) GetBalances(ctx context.Context) (portfolio.Balances, error) {
	m.calls = append(m.calls, "GetBalances")
	return m.balances.Copy(), nil
}

func (m *mockClient) GetRate(ctx context.Context, gold, alt string) (float64, error) {
	m.calls = append(m.calls, "GetRate:"+alt)
	m.rateCalls[alt]++
	// Later lookups see the live market, which may have moved since planning.
	if m.rateCalls[alt] > 1 {
		if live, ok := m.liveRates[alt]; ok {
			return live, nil
		}
	}
	rate, ok := m.rates[alt]
	if !ok {
		return 0, fmt.Errorf("no rate for %s", alt)
	}
	return rate, nil
}

func (m *mockClient) GetFee(ctx context.Context, gold, alt string) (float64, error) {
	m.calls = append(m.calls, "GetFee")
	return m.fee, nil
}

func (m *mockClient) GetOpenOrders(ctx context.Context) (exchange.OpenOrders, error) {
	m.calls = append(m.calls, "GetOpenOrders")
	if len(m.openQueue) > 0 {
		head := m.openQueue[0]
		m.openQueue = m.openQueue[1:]
		return head, nil
	}
	return m.openDefault, nil
}

func (m *mockClient) CancelOrder(ctx context.Context, order exchange.Order) error {
	m.calls = append(m.calls, "CancelOrder:"+order.ID)
	m.cancelled = append(m.cancelled, order.ID)
	if len(m.cancelErrs) > 0 {
		err := m.cancelErrs[0]
		m.cancelErrs = m.cancelErrs[1:]
		return err
	}
	return nil
}

func (m *mockClient) Buy(ctx context.Context, gold, alt string, rate, amount float64) (string, error) {
	m.calls = append(m.calls, "Buy:"+alt)
	if len(m.buyErrs) > 0 {
		err := m.buyErrs[0]
		m.buyErrs = m.buyErrs[1:]
		if err != nil {
			return "", err
		}
	}
	m.buys = append(m.buys, orderCall{alt: alt, rate: rate, amount: amount})
	m.orderSeq++
	return fmt.Sprintf("order-%d", m.orderSeq), nil
}

func (m *mockClient) Sell(ctx context.Context, gold, alt string, rate, amount float64) (string, error) {
	m.calls = append(m.calls, "Sell:"+alt)
	if len(m.sellErrs) > 0 {
		err := m.sellErrs[0]
		m.sellErrs = m.sellErrs[1:]
		if err != nil {
			return "", err
		}
	}
	m.sells = append(m.sells, orderCall{alt: alt, rate: rate, amount: amount})
	m.orderSeq++
	return fmt.Sprintf("order-%d", m.orderSeq), nil
}

type mockJournal struct {
	recs []store.OrderRecord
}

func (j *mockJournal) RecordOrder(ctx context.Context, rec store.OrderRecord) error {
	j.recs = append(j.recs, rec)
	return nil
}

func newTestLoop(t *testing.T, client *mockClient, mockJrnl *mockJournal, opts Options) *Loop {
	t.Helper()
	policy, err := strategy.New("bcr", strategy.Options{})
	if err != nil {
		t.Fatalf("strategy.New returned error: %v", err)
	}
	if opts.Gold == "" {
		opts.Gold = "BTC"
	}
	var jrnl journal
	if mockJrnl != nil {
		jrnl = mockJrnl
	}
	loop, err := NewLoop(client, policy, jrnl, nil, opts, nil)
	if err != nil {
		t.Fatalf("NewLoop returned error: %v", err)
	}
	loop.sleep = func(context.Context, time.Duration) error { return nil }
	return loop
}

func TestLoopRun_BalancedPortfolioTradesNothing(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 10}
	journal := &mockJournal{}
	loop := newTestLoop(t, client, journal, Options{})

	if err := loop.Run(context.Background(), portfolio.Weights{"BTC": 1}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(client.buys) != 0 || len(client.sells) != 0 {
		t.Errorf("expected no orders, got buys=%v sells=%v", client.buys, client.sells)
	}
}

func TestLoopRun_SubmitsBuyWithOutbidRate(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 100}
	client.rates = map[string]float64{"ETH": 0.1}
	journal := &mockJournal{}
	loop := newTestLoop(t, client, journal, Options{OutbidIncrement: 0.00000001})

	targets := portfolio.Weights{"BTC": 0.5, "ETH": 0.5}
	if err := loop.Run(context.Background(), targets); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(client.buys) != 1 {
		t.Fatalf("expected one buy, got %v", client.buys)
	}
	buy := client.buys[0]
	if buy.alt != "ETH" {
		t.Errorf("expected ETH buy, got %s", buy.alt)
	}
	// 50 BTC worth at rate 0.1.
	if math.Abs(buy.amount-500) > 1e-9 {
		t.Errorf("expected 500 ETH, got %v", buy.amount)
	}
	if math.Abs(buy.rate-0.10000001) > 1e-12 {
		t.Errorf("expected outbid rate 0.10000001, got %v", buy.rate)
	}

	if len(journal.recs) != 1 || journal.recs[0].Status != store.StatusPlaced {
		t.Errorf("expected one placed journal record, got %v", journal.recs)
	}
}

func TestLoopRun_OutbidFallsBackOnSlippage(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 100}
	client.rates = map[string]float64{"ETH": 0.1}
	// The market doubled between planning and submission.
	client.liveRates = map[string]float64{"ETH": 0.2}
	loop := newTestLoop(t, client, nil, Options{SlippageTolerance: 0.002})

	targets := portfolio.Weights{"BTC": 0.5, "ETH": 0.5}
	if err := loop.Run(context.Background(), targets); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(client.buys) != 1 {
		t.Fatalf("expected one buy, got %v", client.buys)
	}
	if math.Abs(client.buys[0].rate-0.1) > 1e-12 {
		t.Errorf("expected fallback to planned rate 0.1, got %v", client.buys[0].rate)
	}
}

func TestLoopRun_SkipsOrdersBelowMinimumSize(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 0.0001}
	client.rates = map[string]float64{"ETH": 0.1}
	journal := &mockJournal{}
	loop := newTestLoop(t, client, journal, Options{MinOrderSize: 0.0001})

	targets := portfolio.Weights{"BTC": 0.5, "ETH": 0.5}
	if err := loop.Run(context.Background(), targets); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(client.buys) != 0 || len(client.sells) != 0 {
		t.Errorf("expected no submissions for dust order, got buys=%v sells=%v", client.buys, client.sells)
	}
	if len(journal.recs) != 1 || journal.recs[0].Status != store.StatusSkipped {
		t.Fatalf("expected one skipped journal record, got %v", journal.recs)
	}
}

func TestLoopRun_CancelRetriesCommandFailure(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 10}
	client.openQueue = []exchange.OpenOrders{
		{"ETH/BTC": {{ID: "stale-1", Pair: "ETH/BTC", Side: portfolio.SideBuy, Rate: 0.1, Amount: 5}}},
	}
	client.cancelErrs = []error{
		fmt.Errorf("busy: %w", exchange.ErrCommand),
		nil,
	}
	loop := newTestLoop(t, client, nil, Options{})

	if err := loop.Run(context.Background(), portfolio.Weights{"BTC": 1}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(client.cancelled) != 2 {
		t.Fatalf("expected cancel to be retried once, got calls %v", client.cancelled)
	}
}

func TestLoopRun_CancelFatalOnUnexpectedError(t *testing.T) {
	client := newMockClient()
	client.openQueue = []exchange.OpenOrders{
		{"ETH/BTC": {{ID: "stale-1", Pair: "ETH/BTC", Side: portfolio.SideBuy}}},
	}
	client.cancelErrs = []error{fmt.Errorf("connection reset")}
	loop := newTestLoop(t, client, nil, Options{})

	if err := loop.Run(context.Background(), portfolio.Weights{"BTC": 1}); err == nil {
		t.Fatalf("expected non-command cancel failure to abort the run")
	}
}

func TestLoopRun_ResubmitsRejectedOrderDuringPoll(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 100}
	client.rates = map[string]float64{"ETH": 0.1}
	client.buyErrs = []error{fmt.Errorf("not enough funds: %w", exchange.ErrCommand)}
	loop := newTestLoop(t, client, nil, Options{})

	targets := portfolio.Weights{"BTC": 0.5, "ETH": 0.5}
	if err := loop.Run(context.Background(), targets); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(client.buys) != 1 {
		t.Fatalf("expected rejected order to be resubmitted and filled, got %v", client.buys)
	}
}

func TestLoopRun_ReplansUntilMaxCycles(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 100}
	client.rates = map[string]float64{"ETH": 0.1}
	// A standing open order never fills, so every wait budget expires.
	client.openDefault = exchange.OpenOrders{
		"ETH/BTC": {{ID: "stuck-1", Pair: "ETH/BTC", Side: portfolio.SideBuy, Rate: 0.1, Amount: 1}},
	}
	loop := newTestLoop(t, client, nil, Options{
		PollInterval: time.Millisecond,
		WaitBudget:   time.Millisecond,
		MaxCycles:    2,
	})

	targets := portfolio.Weights{"BTC": 0.5, "ETH": 0.5}
	err := loop.Run(context.Background(), targets)
	if err == nil || !strings.Contains(err.Error(), "2") {
		t.Fatalf("expected max cycle error, got %v", err)
	}
	// Each cycle cancels the stale order and replans from fresh rates.
	if len(client.cancelled) < 2 {
		t.Errorf("expected stale order cancelled on each cycle, got %v", client.cancelled)
	}
	if len(client.buys) < 2 {
		t.Errorf("expected a fresh submission per cycle, got %v", client.buys)
	}
}

func TestLoopRun_ConfirmDeclinedStopsWithoutTrading(t *testing.T) {
	client := newMockClient()
	client.balances = portfolio.Balances{"BTC": 100}
	client.rates = map[string]float64{"ETH": 0.1}

	policy, err := strategy.New("bcr", strategy.Options{})
	if err != nil {
		t.Fatalf("strategy.New returned error: %v", err)
	}
	var previewed []*portfolio.Op
	confirm := func(ops []*portfolio.Op) (bool, error) {
		previewed = ops
		return false, nil
	}
	loop, err := NewLoop(client, policy, nil, confirm, Options{Gold: "BTC"}, nil)
	if err != nil {
		t.Fatalf("NewLoop returned error: %v", err)
	}
	loop.sleep = func(context.Context, time.Duration) error { return nil }

	if err := loop.Run(context.Background(), portfolio.Weights{"BTC": 0.5, "ETH": 0.5}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(previewed) != 1 {
		t.Fatalf("expected confirm to receive the planned ops, got %v", previewed)
	}
	if len(client.buys) != 0 || len(client.sells) != 0 {
		t.Errorf("expected no trading after declined confirmation")
	}
}

func TestClear_CancelsAllOpenOrders(t *testing.T) {
	client := newMockClient()
	client.openQueue = []exchange.OpenOrders{
		{
			"ETH/BTC": {{ID: "o-1", Pair: "ETH/BTC", Side: portfolio.SideBuy, Rate: 0.1, Amount: 5, Total: 0.5}},
			"LTC/BTC": {{ID: "o-2", Pair: "LTC/BTC", Side: portfolio.SideSell, Rate: 0.01, Amount: 3, Total: 0.03}},
		},
	}
	journal := &mockJournal{}

	var asked bool
	confirm := func(orders exchange.OpenOrders) (bool, error) {
		asked = true
		return true, nil
	}
	if err := Clear(context.Background(), client, journal, confirm, nil); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if !asked {
		t.Errorf("expected confirmation prompt")
	}
	if len(client.cancelled) != 2 {
		t.Fatalf("expected both orders cancelled, got %v", client.cancelled)
	}
	if len(journal.recs) != 2 {
		t.Fatalf("expected two journal records, got %v", journal.recs)
	}
	for _, rec := range journal.recs {
		if rec.Status != store.StatusCancelled {
			t.Errorf("expected cancelled status, got %v", rec)
		}
	}
}

func TestClear_NoOpenOrders(t *testing.T) {
	client := newMockClient()
	confirm := func(exchange.OpenOrders) (bool, error) {
		t.Fatalf("confirm must not be called without open orders")
		return false, nil
	}
	if err := Clear(context.Background(), client, nil, confirm, nil); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
}

func TestRenderOps(t *testing.T) {
	ops := []*portfolio.Op{
		{Side: portfolio.SideSell, Alt: "LTC", AltAmount: 3, GoldAmount: 0.03, Rate: 0.01},
		{Side: portfolio.SideBuy, Alt: "ETH", AltAmount: 5, GoldAmount: 0.5, Rate: 0.1},
	}
	out := RenderOps("BTC", ops)
	if !strings.Contains(out, "sell 3.0000 LTC for 0.0300 BTC") {
		t.Errorf("missing sell line in %q", out)
	}
	if !strings.Contains(out, "buy 5.0000 ETH with 0.5000 BTC") {
		t.Errorf("missing buy line in %q", out)
	}
}
