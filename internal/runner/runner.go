package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	okxws "spot_bot/internal/modules/okx_websocket/service"
	strategy "spot_bot/internal/modules/strategy/service"
	"spot_bot/pkg/tracing"
)

// MarketData — REST-часть, нужная планировщику для прогрева и оценки.
type MarketData interface {
	GetCandles(ctx context.Context, instID, bar string, limit int) ([]models.CandleTick, error)
	GetTicker(ctx context.Context, instID string) (models.Ticker, error)
	HasCandles(ctx context.Context, instID, bar string) bool
}

// Runner — единственный поллинг-цикл: скоринг → менеджер позиций.
// Циклы не перекрываются; сон начинается после полного завершения цикла,
// включая все ордера.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg  *config.Config
	mx   MarketData
	feed *okxws.Client
	eng  strategy.Engine
	mgr  *Manager
	n    Notifier

	mu       sync.Mutex
	watch    []string
	cycles   int64
	lastTick map[string]time.Time
}

func New(cfg *config.Config, mx MarketData, feed *okxws.Client, eng strategy.Engine, mgr *Manager, n Notifier) *Runner {
	return &Runner{
		cfg:      cfg,
		mx:       mx,
		feed:     feed,
		eng:      eng,
		mgr:      mgr,
		n:        n,
		lastTick: make(map[string]time.Time),
	}
}

func (r *Runner) Manager() *Manager { return r.mgr }

func (r *Runner) Start(parent context.Context) {
	r.ctx, r.cancel = context.WithCancel(parent)

	// фильтруем кандидатов: символы без истории свечей бесполезны
	watch := make([]string, 0, len(r.cfg.Symbols))
	for _, s := range r.cfg.Symbols {
		if r.mx.HasCandles(r.ctx, s, "1m") {
			watch = append(watch, s)
		} else {
			log.Printf("[SKIP] %s — нет свечей 1m у OKX", s)
		}
	}
	if len(watch) == 0 {
		log.Println("[WATCHLIST] ни одного торгуемого символа")
		return
	}
	r.mu.Lock()
	r.watch = watch
	r.mu.Unlock()

	log.Printf("[WATCHLIST] %d символов: %v", len(watch), watch)
	if r.n != nil {
		r.n.Sendf("📈 Бот запущен: %d символов, цикл %s", len(watch), r.cfg.Trading.PollInterval)
	}

	go r.healthLoop(r.ctx)

	for {
		r.runCycle(r.ctx)

		// только после полного завершения цикла начинается пауза;
		// стоп-сигнал прерывает её немедленно
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.cfg.Trading.PollInterval):
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	span, ctx := tracing.StartSpan(ctx, "trading_cycle")
	defer span.Finish()

	r.mu.Lock()
	r.cycles++
	watch := r.watch
	r.mu.Unlock()

	// 1. Сначала выходы — освобождают слоты и баланс для входов
	r.mgr.EvaluateExits(ctx, r.currentPrice)

	// 2. Входы
	if r.cfg.Trading.ParallelEntries > 1 {
		r.evaluateEntriesParallel(ctx, watch)
	} else {
		for _, symbol := range watch {
			if ctx.Err() != nil {
				return
			}
			r.evaluateEntry(ctx, symbol)
		}
	}
}

// currentPrice — цена из кеша фида, с REST-фолбэком пока фид прогревается.
func (r *Runner) currentPrice(symbol string) float64 {
	if px := r.feed.CurrentPrice(symbol); px > 0 {
		return px
	}
	t, err := r.mx.GetTicker(r.ctx, symbol)
	if err != nil {
		return 0
	}
	return t.Last
}

func (r *Runner) evaluateEntry(ctx context.Context, symbol string) {
	candles, err := r.mx.GetCandles(ctx, symbol, "1m", 60)
	if err != nil {
		log.Printf("[EVAL] %s candles: %v", symbol, err)
		return
	}

	ticker, err := r.mx.GetTicker(ctx, symbol)
	if err != nil {
		// тикер из фида, если REST недоступен
		if px := r.feed.CurrentPrice(symbol); px > 0 {
			ticker = models.Ticker{InstID: symbol, Last: px, Timestamp: time.Now()}
		} else {
			log.Printf("[EVAL] %s ticker: %v", symbol, err)
			return
		}
	}

	r.mu.Lock()
	r.lastTick[symbol] = time.Now()
	r.mu.Unlock()

	sig := r.eng.Score(symbol, candles, ticker)
	if sig.Score != 0 {
		log.Printf("[EVAL] %s score=%.3f (mom=%.2f vol=%.2f volat=%.2f range=%.2f)",
			symbol, sig.Score, sig.Momentum, sig.VolumeRatio, sig.Volatility, sig.RangePos)
	}

	r.mgr.EvaluateEntry(ctx, symbol, sig.Score, ticker.Last)
}

func (r *Runner) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.mgr.Stats()
			h := r.feed.Health()
			r.mu.Lock()
			symbols := len(r.lastTick)
			cycles := r.cycles
			r.mu.Unlock()

			log.Printf("[HEALTH] cycles=%d symbols=%d open=%d trades=%d winrate=%.0f%% pnl=%s feed(conn=%v msgs=%d)",
				cycles, symbols, r.mgr.OpenCount(), stats.Trades, stats.WinRate()*100,
				stats.PnL.StringFixed(4), h.Connected, h.Messages)
			if r.n != nil {
				r.n.Sendf("🩺 HEALTH | open=%d | trades=%d | pnl=%s USDT | feed=%v",
					r.mgr.OpenCount(), stats.Trades, stats.PnL.StringFixed(4), h.Connected)
			}
		}
	}
}

// Stop — мягко гасит цикл: текущий цикл завершится вместе с ордерами.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}
