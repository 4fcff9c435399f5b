package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	okx "spot_bot/internal/modules/okx_client/service"
	"spot_bot/internal/sizing"
	"spot_bot/pkg/logger"
)

// Exchange — то, что менеджеру позиций нужно от OKX-клиента.
type Exchange interface {
	GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error)
	InvalidateInstrument(instID string)
	PlaceMarketOrder(ctx context.Context, side string, size sizing.OrderSize) (string, error)
	USDTBalance(ctx context.Context) (decimal.Decimal, error)
}

// Journal — приёмник закрытых сделок (pg-журнал или no-op).
type Journal interface {
	Record(ctx context.Context, tr models.ClosedTrade) error
}

// Notifier — пассивные уведомления (telegram или no-op).
type Notifier interface {
	Sendf(format string, args ...any)
}

// Manager — владелец открытых позиций и единственный, кто их мутирует.
// Машина состояний на символ: Idle → Open → Idle.
type Manager struct {
	cfg     *config.Config
	mx      Exchange
	journal Journal
	n       Notifier

	mu       sync.Mutex
	open     map[string]*models.Position
	inflight map[string]bool // символы с ордером в полёте
	entering map[string]bool // входы в полёте, считаются в лимите позиций
	stats    models.TradeStats
	lastSkip map[string]string // symbol -> почему не торговали в этом цикле

	now func() time.Time // подменяется в тестах
}

func NewManager(cfg *config.Config, mx Exchange, journal Journal, n Notifier) *Manager {
	return &Manager{
		cfg:      cfg,
		mx:       mx,
		journal:  journal,
		n:        n,
		open:     make(map[string]*models.Position),
		inflight: make(map[string]bool),
		entering: make(map[string]bool),
		lastSkip: make(map[string]string),
		now:      time.Now,
	}
}

// beginSymbol — per-symbol guard: один вход/выход в полёте на символ.
func (m *Manager) beginSymbol(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[symbol] {
		return false
	}
	m.inflight[symbol] = true
	return true
}

func (m *Manager) endSymbol(symbol string) {
	m.mu.Lock()
	delete(m.inflight, symbol)
	m.mu.Unlock()
}

// reserveEntry — проверка дубля и лимита вместе с резервом слота, одним
// захватом мьютекса: параллельные входы не могут вдвоём пройти под кап.
func (m *Manager) reserveEntry(symbol string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight[symbol] {
		return false, ""
	}
	if _, open := m.open[symbol]; open {
		return false, "position already open"
	}
	if m.cfg.Trading.MaxOpenPositions > 0 &&
		len(m.open)+len(m.entering) >= m.cfg.Trading.MaxOpenPositions {
		return false, fmt.Sprintf("open position limit %d reached", m.cfg.Trading.MaxOpenPositions)
	}

	m.inflight[symbol] = true
	m.entering[symbol] = true
	return true, ""
}

func (m *Manager) releaseEntry(symbol string) {
	m.mu.Lock()
	delete(m.inflight, symbol)
	delete(m.entering, symbol)
	m.mu.Unlock()
}

func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) OpenPositions() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

func (m *Manager) Stats() models.TradeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// SkipReason — почему по символу не было сделки в последнем цикле.
func (m *Manager) SkipReason(symbol string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSkip[symbol]
}

func (m *Manager) skip(symbol, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	m.mu.Lock()
	m.lastSkip[symbol] = reason
	m.mu.Unlock()
}

// EvaluateEntry — переход Idle → Open. Неудачный вход — упущенная
// возможность, внутри цикла не ретраится.
func (m *Manager) EvaluateEntry(ctx context.Context, symbol string, score, price float64) {
	if score < m.cfg.Trading.EntryThreshold {
		m.skip(symbol, "score %.3f below threshold %.3f", score, m.cfg.Trading.EntryThreshold)
		return
	}
	if price <= 0 {
		m.skip(symbol, "no price")
		return
	}

	ok, reason := m.reserveEntry(symbol)
	if !ok {
		if reason != "" {
			m.skip(symbol, "%s", reason)
		}
		return
	}
	defer m.releaseEntry(symbol)

	balance, err := m.mx.USDTBalance(ctx)
	if err != nil {
		m.skip(symbol, "balance: %v", err)
		return
	}
	free := balance.Sub(decimal.NewFromFloat(m.cfg.Trading.ReserveUSDT))
	notional := decimal.NewFromFloat(m.cfg.Trading.PerTradeUSDT)
	if free.Cmp(notional) < 0 {
		notional = free
	}
	if notional.Sign() <= 0 {
		m.skip(symbol, "free balance %s below reserve", balance.String())
		return
	}

	inst, err := m.mx.GetInstrumentMeta(ctx, symbol)
	if err != nil {
		m.skip(symbol, "instrument meta: %v", err)
		return
	}

	priceDec := decimal.NewFromFloat(price)
	size, err := sizing.Normalize(symbol, notional, priceDec, inst.MinSz, inst.LotSz)
	if err != nil {
		var bm *sizing.BelowMinimumError
		if errors.As(err, &bm) {
			m.skip(symbol, "sizing rejected: computed %s < min %s (notional %s @ %.8f)",
				bm.Computed, bm.Required, notional, price)
		} else {
			m.skip(symbol, "sizing: %v", err)
		}
		return
	}

	// остановка цикла не обрывает ордер в полёте: статус был бы неизвестен
	orderID, err := m.mx.PlaceMarketOrder(context.WithoutCancel(ctx), "buy", size)
	if err != nil {
		var apiErr *okx.APIError
		if errors.As(err, &apiErr) {
			// биржа могла поменять лот/минимум — обновим метаданные
			m.mx.InvalidateInstrument(symbol)
		}
		m.skip(symbol, "buy failed: %v", err)
		logger.Error("[ENTRY] %s buy failed: %v", symbol, err)
		return
	}

	pos := &models.Position{
		Symbol:    symbol,
		Qty:       size.Qty,
		Entry:     priceDec,
		Invested:  size.Notional(priceDec),
		OrderID:   orderID,
		EntryTime: m.now(),
	}

	m.mu.Lock()
	m.open[symbol] = pos
	delete(m.entering, symbol) // резерв стал позицией, не считаем дважды
	delete(m.lastSkip, symbol)
	m.mu.Unlock()

	logger.Info("[ENTRY] %s qty=%s @ %.8f invested=%s score=%.3f ordId=%s",
		symbol, size.Qty, price, pos.Invested, score, orderID)
	if m.n != nil {
		m.n.Sendf("🟢 OPEN %s qty=%s @ %.6f (score %.2f)", symbol, size.Qty, price, score)
	}
}

// exitReason — приоритет выхода фиксированный: профит → стоп → время.
func (m *Manager) exitReason(pos *models.Position, price float64) (models.CloseReason, bool) {
	priceDec := decimal.NewFromFloat(price)
	ratio, _ := priceDec.Sub(pos.Entry).Div(pos.Entry).Float64()

	switch {
	case ratio >= m.cfg.Trading.ProfitTarget:
		return models.CloseProfit, true
	case ratio <= m.cfg.Trading.StopLoss:
		return models.CloseStopLoss, true
	case m.now().Sub(pos.EntryTime) > m.cfg.Trading.MaxHold:
		return models.CloseTimeLimit, true
	}
	return "", false
}

// EvaluateExits — переход Open → Idle для всех позиций, у которых сработало
// правило. Неудачный sell оставляет позицию — доберём в следующем цикле.
func (m *Manager) EvaluateExits(ctx context.Context, priceOf func(symbol string) float64) {
	m.mu.Lock()
	snapshot := make([]models.Position, 0, len(m.open))
	for _, p := range m.open {
		snapshot = append(snapshot, *p)
	}
	m.mu.Unlock()

	for _, pos := range snapshot {
		price := priceOf(pos.Symbol)
		if price <= 0 {
			continue
		}
		reason, fire := m.exitReason(&pos, price)
		if !fire {
			continue
		}
		m.closePosition(ctx, pos, price, reason)
	}
}

func (m *Manager) closePosition(ctx context.Context, pos models.Position, price float64, reason models.CloseReason) {
	if !m.beginSymbol(pos.Symbol) {
		return
	}
	defer m.endSymbol(pos.Symbol)

	// лот мог поменяться с момента входа — нормализуем удерживаемый объём
	inst, err := m.mx.GetInstrumentMeta(ctx, pos.Symbol)
	if err != nil {
		logger.Error("[EXIT] %s instrument meta: %v", pos.Symbol, err)
		return
	}

	priceDec := decimal.NewFromFloat(price)
	size, err := sizing.NormalizeQty(pos.Symbol, pos.Qty, inst.MinSz, inst.LotSz)
	if err != nil {
		// остаток меньше минимума продать нельзя — требуется ручная сверка
		logger.Error("[EXIT] %s held qty %s unsellable: %v", pos.Symbol, pos.Qty, err)
		return
	}

	orderID, err := m.mx.PlaceMarketOrder(context.WithoutCancel(ctx), "sell", size)
	if err != nil {
		var apiErr *okx.APIError
		if errors.As(err, &apiErr) {
			m.mx.InvalidateInstrument(pos.Symbol)
		}
		logger.Error("[EXIT] %s sell failed (retry next cycle): %v", pos.Symbol, err)
		return
	}

	ratio := priceDec.Sub(pos.Entry).Div(pos.Entry)
	pnl := ratio.Mul(pos.Invested)
	closedAt := m.now()

	m.mu.Lock()
	delete(m.open, pos.Symbol)
	m.stats.Trades++
	if pnl.Sign() > 0 {
		m.stats.Wins++
	}
	m.stats.PnL = m.stats.PnL.Add(pnl)
	m.mu.Unlock()

	trade := models.ClosedTrade{
		Symbol:   pos.Symbol,
		Qty:      pos.Qty,
		Entry:    pos.Entry,
		Exit:     priceDec,
		Invested: pos.Invested,
		PnL:      pnl,
		Reason:   reason,
		OrderID:  orderID,
		OpenedAt: pos.EntryTime,
		ClosedAt: closedAt,
	}

	logger.Info("[EXIT] %s %s pnl=%s (held %s) ordId=%s",
		pos.Symbol, reason, pnl, closedAt.Sub(pos.EntryTime), orderID)
	if m.n != nil {
		m.n.Sendf("🔴 CLOSE %s %s pnl=%s USDT", pos.Symbol, reason, pnl.StringFixed(4))
	}
	if m.journal != nil {
		if err := m.journal.Record(ctx, trade); err != nil {
			logger.Error("[JOURNAL] record %s: %v", pos.Symbol, err)
		}
	}
}
