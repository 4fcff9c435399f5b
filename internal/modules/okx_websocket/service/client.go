package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	"spot_bot/pkg/logger"
)

// Subscriber — колбэк на производные события фида. Паника подписчика
// гасится на границе dispatch и не роняет ни соединение, ни остальных.
type Subscriber func(models.FeedEvent)

// Client — стриминговый маркет-фид: tickers + trades по набору символов,
// скользящие буферы, детект всплеска объёма и buy/sell-флоу.
type Client struct {
	cfg      *config.Config
	wsDialer *websocket.Dialer
	wsURL    string

	mu     sync.RWMutex
	ticks  map[string]*tickerBuffer
	trades map[string]*tradeBuffer
	price  map[string]float64

	subMu sync.RWMutex
	subs  []Subscriber

	connected  atomic.Bool
	msgCount   atomic.Int64
	reconnects atomic.Int64
	lastMsgNs  atomic.Int64
	latencyNs  atomic.Int64 // EWMA обработки, наносекунды
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsURL:    publicWSURL,
		ticks:    make(map[string]*tickerBuffer),
		trades:   make(map[string]*tradeBuffer),
		price:    make(map[string]float64),
	}
}

func (c *Client) Subscribe(fn Subscriber) {
	c.subMu.Lock()
	c.subs = append(c.subs, fn)
	c.subMu.Unlock()
}

func (c *Client) dispatch(ev models.FeedEvent) {
	c.subMu.RLock()
	subs := c.subs
	c.subMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("[FEED] subscriber panic: %v", p)
				}
			}()
			fn(ev)
		}()
	}
}

// CurrentPrice — последняя цена из кеша фида; 0 если тиков ещё не было.
func (c *Client) CurrentPrice(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price[symbol]
}

// RecentTicks — копия хвоста буфера тиков, от старых к новым.
func (c *Client) RecentTicks(symbol string, limit int) []models.Ticker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buf, ok := c.ticks[symbol]
	if !ok {
		return nil
	}
	return buf.tail(limit)
}

// RecentTrades — копия хвоста буфера сделок, от старых к новым.
func (c *Client) RecentTrades(symbol string, limit int) []models.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buf, ok := c.trades[symbol]
	if !ok {
		return nil
	}
	return buf.tail(limit)
}

// Health — агрегированное состояние фида для health-ручки и health-лога.
type Health struct {
	Connected  bool
	Messages   int64
	Reconnects int64
	LastUpdate time.Time
	AvgLatency time.Duration
}

func (c *Client) Health() Health {
	var last time.Time
	if ns := c.lastMsgNs.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return Health{
		Connected:  c.connected.Load(),
		Messages:   c.msgCount.Load(),
		Reconnects: c.reconnects.Load(),
		LastUpdate: last,
		AvgLatency: time.Duration(c.latencyNs.Load()),
	}
}

func (c *Client) noteMessage(procStart time.Time) {
	c.msgCount.Add(1)
	c.lastMsgNs.Store(time.Now().UnixNano())

	// EWMA с альфой 1/8 — достаточно для "approximate latency"
	sample := time.Since(procStart).Nanoseconds()
	prev := c.latencyNs.Load()
	c.latencyNs.Store(prev + (sample-prev)/8)
}

func (c *Client) onTicker(t models.Ticker) {
	c.mu.Lock()
	buf, ok := c.ticks[t.InstID]
	if !ok {
		buf = newTickerBuffer(c.cfg.Feed.TickBuffer)
		c.ticks[t.InstID] = buf
	}
	buf.push(t)
	c.price[t.InstID] = t.Last
	spike, factor := buf.volumeSpike(c.cfg.Feed.SpikeFactor)
	c.mu.Unlock()

	c.dispatch(models.FeedEvent{
		Type:         models.FeedTick,
		Ticker:       t,
		VolumeSpike:  spike,
		VolumeFactor: factor,
	})
}

func (c *Client) onTrade(tr models.Trade) {
	c.mu.Lock()
	buf, ok := c.trades[tr.InstID]
	if !ok {
		buf = newTradeBuffer(c.cfg.Feed.TradeBuffer)
		c.trades[tr.InstID] = buf
	}
	buf.push(tr)
	ratio := buf.buyFlowRatio(tr.Timestamp, c.cfg.Feed.FlowWindow)
	c.mu.Unlock()

	c.dispatch(models.FeedEvent{
		Type:         models.FeedTrade,
		Trade:        tr,
		BuyFlowRatio: ratio,
	})
}
