package service

import (
	"time"

	"spot_bot/internal/models"
)

// минимальное число тиков, раньше которого спайк не детектим
const spikeMinSamples = 10

// tickerBuffer — ограниченное скользящее окно тиков, старые вытесняются.
type tickerBuffer struct {
	buf []models.Ticker
	cap int
}

func newTickerBuffer(capacity int) *tickerBuffer {
	if capacity <= 0 {
		capacity = 120
	}
	return &tickerBuffer{buf: make([]models.Ticker, 0, capacity), cap: capacity}
}

func (b *tickerBuffer) push(t models.Ticker) {
	if len(b.buf) == b.cap {
		copy(b.buf, b.buf[1:])
		b.buf[len(b.buf)-1] = t
		return
	}
	b.buf = append(b.buf, t)
}

func (b *tickerBuffer) tail(limit int) []models.Ticker {
	n := len(b.buf)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Ticker, limit)
	copy(out, b.buf[n-limit:])
	return out
}

// volumeSpike — отношение текущего 24ч-объёма к среднему по окну
// (без последнего тика). Спайк, когда factor >= порога.
func (b *tickerBuffer) volumeSpike(threshold float64) (bool, float64) {
	n := len(b.buf)
	if n < spikeMinSamples {
		return false, 0
	}

	var sum float64
	for _, t := range b.buf[:n-1] {
		sum += t.Vol24h
	}
	avg := sum / float64(n-1)
	if avg <= 0 {
		return false, 0
	}

	factor := b.buf[n-1].Vol24h / avg
	return factor >= threshold, factor
}

// tradeBuffer — окно последних сделок символа.
type tradeBuffer struct {
	buf []models.Trade
	cap int
}

func newTradeBuffer(capacity int) *tradeBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &tradeBuffer{buf: make([]models.Trade, 0, capacity), cap: capacity}
}

func (b *tradeBuffer) push(t models.Trade) {
	if len(b.buf) == b.cap {
		copy(b.buf, b.buf[1:])
		b.buf[len(b.buf)-1] = t
		return
	}
	b.buf = append(b.buf, t)
}

func (b *tradeBuffer) tail(limit int) []models.Trade {
	n := len(b.buf)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Trade, limit)
	copy(out, b.buf[n-limit:])
	return out
}

// buyFlowRatio — доля buy-объёма среди сделок не старше window от now.
// 0.5 при пустом окне: нет данных — нет перекоса.
func (b *tradeBuffer) buyFlowRatio(now time.Time, window time.Duration) float64 {
	if window <= 0 {
		window = time.Minute
	}
	cutoff := now.Add(-window)

	var buy, total float64
	for i := len(b.buf) - 1; i >= 0; i-- {
		t := b.buf[i]
		if t.Timestamp.Before(cutoff) {
			break // буфер упорядочен по времени
		}
		vol := t.Price * t.Size
		total += vol
		if t.Side == "buy" {
			buy += vol
		}
	}

	if total <= 0 {
		return 0.5
	}
	return buy / total
}
