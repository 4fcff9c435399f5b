package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/sizing"
	"spot_bot/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type placedOrder struct {
	Side string
	Size sizing.OrderSize
}

type fakeExchange struct {
	mu      sync.Mutex
	balance decimal.Decimal
	inst    models.Instrument

	buyErr  error
	sellErr error

	orders      []placedOrder
	invalidated []string
	nextOrdID   int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balance: decimal.RequireFromString("1000"),
		inst: models.Instrument{
			InstID: "X-USDT",
			MinSz:  decimal.RequireFromString("1"),
			LotSz:  decimal.RequireFromString("1"),
			TickSz: decimal.RequireFromString("0.000001"),
			LastPx: 1,
		},
	}
}

func (f *fakeExchange) GetInstrumentMeta(_ context.Context, instID string) (models.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := f.inst
	inst.InstID = instID
	return inst, nil
}

func (f *fakeExchange) InvalidateInstrument(instID string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, instID)
	f.mu.Unlock()
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, side string, size sizing.OrderSize) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if side == "buy" && f.buyErr != nil {
		return "", f.buyErr
	}
	if side == "sell" && f.sellErr != nil {
		return "", f.sellErr
	}
	f.orders = append(f.orders, placedOrder{Side: side, Size: size})
	f.nextOrdID++
	return fmt.Sprintf("ord-%d", f.nextOrdID), nil
}

func (f *fakeExchange) USDTBalance(context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeExchange) placed() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]placedOrder, len(f.orders))
	copy(out, f.orders)
	return out
}

type recordedJournal struct {
	mu     sync.Mutex
	trades []models.ClosedTrade
}

func (j *recordedJournal) Record(_ context.Context, tr models.ClosedTrade) error {
	j.mu.Lock()
	j.trades = append(j.trades, tr)
	j.mu.Unlock()
	return nil
}

func testCfg() *config.Config {
	cfg := &config.Config{}
	cfg.Trading.EntryThreshold = 0.5
	cfg.Trading.ProfitTarget = 0.015
	cfg.Trading.StopLoss = -0.02
	cfg.Trading.MaxHold = 180 * time.Second
	cfg.Trading.PerTradeUSDT = 50
	cfg.Trading.ReserveUSDT = 10
	cfg.Trading.MaxOpenPositions = 2
	return cfg
}

// тестовые часы с ручной перемоткой
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(cfg *config.Config, mx Exchange) (*Manager, *testClock, *recordedJournal) {
	j := &recordedJournal{}
	m := NewManager(cfg, mx, j, nil)
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clk.now
	return m, clk, j
}

func fixedPrice(px float64) func(string) float64 {
	return func(string) float64 { return px }
}

func TestEntryOpensPosition(t *testing.T) {
	mx := newFakeExchange()
	m, _, _ := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.7, 1.0)

	if m.OpenCount() != 1 {
		t.Fatalf("open = %d, want 1", m.OpenCount())
	}
	orders := mx.placed()
	if len(orders) != 1 || orders[0].Side != "buy" {
		t.Fatalf("orders = %+v", orders)
	}
	// 50 USDT @ 1.0, lot 1 => qty 50
	if orders[0].Size.Qty.String() != "50" {
		t.Fatalf("qty = %s, want 50", orders[0].Size.Qty)
	}
}

func TestEntryRespectsThresholdAndLimit(t *testing.T) {
	mx := newFakeExchange()
	m, _, _ := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "A-USDT", 0.4, 1.0) // ниже порога
	if m.OpenCount() != 0 {
		t.Fatal("entered below threshold")
	}
	if m.SkipReason("A-USDT") == "" {
		t.Fatal("skip reason must explain why no trade happened")
	}

	m.EvaluateEntry(context.Background(), "A-USDT", 0.9, 1.0)
	m.EvaluateEntry(context.Background(), "B-USDT", 0.9, 1.0)
	m.EvaluateEntry(context.Background(), "C-USDT", 0.9, 1.0) // лимит 2
	if m.OpenCount() != 2 {
		t.Fatalf("open = %d, want 2 (limit)", m.OpenCount())
	}

	// второй вход по открытому символу невозможен
	m.EvaluateEntry(context.Background(), "A-USDT", 0.9, 1.0)
	if m.OpenCount() != 2 {
		t.Fatal("duplicate position per symbol")
	}
}

func TestEntryBuyFailureLeavesIdle(t *testing.T) {
	mx := newFakeExchange()
	mx.buyErr = fmt.Errorf("boom")
	m, _, _ := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	if m.OpenCount() != 0 {
		t.Fatal("position created on failed buy")
	}
	if m.SkipReason("X-USDT") == "" {
		t.Fatal("failed buy must leave a reason")
	}
}

func TestExitProfitScenario(t *testing.T) {
	// entry 1.000000, px 1.02 @ t=10s -> profit
	mx := newFakeExchange()
	m, clk, j := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	clk.advance(10 * time.Second)
	m.EvaluateExits(context.Background(), fixedPrice(1.02))

	if m.OpenCount() != 0 {
		t.Fatal("position not closed")
	}
	if len(j.trades) != 1 || j.trades[0].Reason != models.CloseProfit {
		t.Fatalf("trades = %+v", j.trades)
	}
	if j.trades[0].PnL.Sign() <= 0 {
		t.Fatalf("profit close with pnl %s", j.trades[0].PnL)
	}

	stats := m.Stats()
	if stats.Trades != 1 || stats.Wins != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExitStopLossScenario(t *testing.T) {
	mx := newFakeExchange()
	m, clk, j := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	clk.advance(5 * time.Second)
	m.EvaluateExits(context.Background(), fixedPrice(0.975))

	if len(j.trades) != 1 || j.trades[0].Reason != models.CloseStopLoss {
		t.Fatalf("trades = %+v", j.trades)
	}
	if j.trades[0].PnL.Sign() >= 0 {
		t.Fatalf("stop-loss close with pnl %s", j.trades[0].PnL)
	}
}

func TestExitTimeLimitScenario(t *testing.T) {
	mx := newFakeExchange()
	m, clk, j := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)

	clk.advance(179 * time.Second)
	m.EvaluateExits(context.Background(), fixedPrice(1.001))
	if m.OpenCount() != 1 {
		t.Fatal("closed before time limit")
	}

	clk.advance(2 * time.Second) // t=181s
	m.EvaluateExits(context.Background(), fixedPrice(1.001))
	if len(j.trades) != 1 || j.trades[0].Reason != models.CloseTimeLimit {
		t.Fatalf("trades = %+v", j.trades)
	}
}

// При одновременном срабатывании порогов приоритет фиксированный:
// профит раньше стопа.
func TestExitPriorityDeterministic(t *testing.T) {
	cfg := testCfg()
	cfg.Trading.ProfitTarget = -0.05 // контрфикстура: оба порога ниже нуля
	cfg.Trading.StopLoss = -0.02

	mx := newFakeExchange()
	m, clk, j := newTestManager(cfg, mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	clk.advance(time.Second)
	// ratio -0.03: >= profit(-0.05) И <= stop(-0.02)
	m.EvaluateExits(context.Background(), fixedPrice(0.97))

	if len(j.trades) != 1 || j.trades[0].Reason != models.CloseProfit {
		t.Fatalf("priority broken: %+v", j.trades)
	}
}

func TestExitSellFailureRetained(t *testing.T) {
	mx := newFakeExchange()
	m, clk, j := newTestManager(testCfg(), mx)

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	mx.sellErr = fmt.Errorf("exchange down")

	clk.advance(10 * time.Second)
	m.EvaluateExits(context.Background(), fixedPrice(1.02))
	if m.OpenCount() != 1 {
		t.Fatal("position lost on failed sell")
	}

	// следующий цикл — биржа ожила, позиция закрывается
	mx.sellErr = nil
	m.EvaluateExits(context.Background(), fixedPrice(1.02))
	if m.OpenCount() != 0 || len(j.trades) != 1 {
		t.Fatalf("retry failed: open=%d trades=%d", m.OpenCount(), len(j.trades))
	}
}

// биржа, задерживающая каждый ордер до отпускания release
type gatedExchange struct {
	*fakeExchange
	entered chan string
	release chan struct{}
}

func newGatedExchange() *gatedExchange {
	return &gatedExchange{
		fakeExchange: newFakeExchange(),
		entered:      make(chan string, 4),
		release:      make(chan struct{}),
	}
}

func (g *gatedExchange) PlaceMarketOrder(ctx context.Context, side string, size sizing.OrderSize) (string, error) {
	g.entered <- size.InstID
	<-g.release
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return g.fakeExchange.PlaceMarketOrder(ctx, side, size)
}

// Лимит позиций учитывает входы в полёте: пока один buy висит на бирже,
// параллельный вход по другому символу не может занять тот же слот.
func TestEntryCapCountsInflightEntries(t *testing.T) {
	cfg := testCfg()
	cfg.Trading.MaxOpenPositions = 1

	mx := newGatedExchange()
	m, _, _ := newTestManager(cfg, mx)

	var wg sync.WaitGroup
	for _, s := range []string{"A-USDT", "B-USDT"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			m.EvaluateEntry(context.Background(), sym, 0.9, 1.0)
		}(s)
	}

	first := <-mx.entered
	select {
	case second := <-mx.entered:
		t.Fatalf("%s and %s both passed the cap of 1", first, second)
	case <-time.After(100 * time.Millisecond):
	}

	close(mx.release)
	wg.Wait()

	if m.OpenCount() != 1 {
		t.Fatalf("open = %d, want 1", m.OpenCount())
	}
	if got := len(mx.placed()); got != 1 {
		t.Fatalf("orders = %d, want 1", got)
	}
}

// Стоп-сигнал во время висящего ордера не бросает его: позиция фиксируется,
// а выход при уже отменённом контексте тоже доводится до конца.
func TestStopDoesNotAbortInflightOrder(t *testing.T) {
	mx := newGatedExchange()
	m, clk, j := newTestManager(testCfg(), mx)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.EvaluateEntry(ctx, "X-USDT", 0.9, 1.0)
	}()

	<-mx.entered
	cancel() // остановка пришла, пока buy в полёте
	close(mx.release)
	<-done

	if m.OpenCount() != 1 {
		t.Fatalf("in-flight buy abandoned: open=%d skip=%q", m.OpenCount(), m.SkipReason("X-USDT"))
	}

	clk.advance(10 * time.Second)
	m.EvaluateExits(ctx, fixedPrice(1.02))
	if m.OpenCount() != 0 || len(j.trades) != 1 {
		t.Fatalf("exit on cancelled ctx: open=%d trades=%d", m.OpenCount(), len(j.trades))
	}
}

func TestInflightGuardBlocksConcurrentSymbol(t *testing.T) {
	mx := newFakeExchange()
	m, _, _ := newTestManager(testCfg(), mx)

	if !m.beginSymbol("X-USDT") {
		t.Fatal("first begin must succeed")
	}
	// пока ордер в полёте — вход по тому же символу невозможен
	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	if len(mx.placed()) != 0 {
		t.Fatal("order placed despite in-flight guard")
	}
	m.endSymbol("X-USDT")

	m.EvaluateEntry(context.Background(), "X-USDT", 0.9, 1.0)
	if len(mx.placed()) != 1 {
		t.Fatal("guard not released")
	}
}

// Инвариант на таймлайне: открытых позиций никогда больше лимита
// и не больше одной на символ.
func TestPositionInvariantOverTimeline(t *testing.T) {
	cfg := testCfg()
	cfg.Trading.MaxOpenPositions = 2

	mx := newFakeExchange()
	m, clk, _ := newTestManager(cfg, mx)

	symbols := []string{"A-USDT", "B-USDT", "C-USDT", "D-USDT"}
	prices := []float64{1.0, 1.02, 0.975, 1.0, 1.03}

	for step, px := range prices {
		m.EvaluateExits(context.Background(), fixedPrice(px))
		for _, s := range symbols {
			m.EvaluateEntry(context.Background(), s, 0.9, 1.0)
		}

		if m.OpenCount() > cfg.Trading.MaxOpenPositions {
			t.Fatalf("step %d: open %d > limit", step, m.OpenCount())
		}
		seen := map[string]bool{}
		for _, p := range m.OpenPositions() {
			if seen[p.Symbol] {
				t.Fatalf("step %d: duplicate position %s", step, p.Symbol)
			}
			seen[p.Symbol] = true
		}
		clk.advance(30 * time.Second)
	}
}
