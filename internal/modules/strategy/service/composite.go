package service

import (
	"math"

	"spot_bot/internal/models"
)

// Окно фиксированное, чтобы скор был воспроизводим: последние shortWindow
// свечей против предыдущих longWindow.
const (
	shortWindow = 5
	longWindow  = 10
	minSamples  = shortWindow + longWindow
)

// Composite — сумма независимых компонент с обрезкой в [-1, 1].
// Каждая компонента считается от одного и того же окна и заменяема
// по отдельности; сложение, а не умножение — порядок не важен.
type Composite struct{}

func NewComposite() *Composite { return &Composite{} }

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Score(symbol string, candles []models.CandleTick, ticker models.Ticker) models.Signal {
	sig := models.Signal{InstID: symbol}
	if len(candles) < minSamples {
		return sig // нейтрально: недостаточно данных
	}

	window := candles[len(candles)-minSamples:]

	sig.Momentum = momentumScore(window)
	sig.VolumeRatio = volumeScore(window)
	sig.Volatility = volatilityScore(window)
	sig.RangePos = rangeScore(window, ticker)

	score := sig.Momentum + sig.VolumeRatio + sig.Volatility + sig.RangePos
	sig.Score = clamp(score, -1, 1)
	return sig
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// momentumScore — средний close последних shortWindow свечей против
// предыдущих longWindow, через фиксированные брейкпоинты.
func momentumScore(w []models.CandleTick) float64 {
	var recent, prior float64
	for _, c := range w[longWindow:] {
		recent += c.Close
	}
	recent /= shortWindow
	for _, c := range w[:longWindow] {
		prior += c.Close
	}
	prior /= longWindow

	if prior <= 0 {
		return 0
	}
	r := (recent - prior) / prior

	switch {
	case r >= 0.01:
		return 0.35
	case r >= 0.004:
		return 0.2
	case r >= 0.001:
		return 0.1
	case r <= -0.01:
		return -0.35
	case r <= -0.004:
		return -0.2
	case r <= -0.001:
		return -0.1
	}
	return 0
}

// volumeScore — объём последней свечи против среднего по окну.
func volumeScore(w []models.CandleTick) float64 {
	n := len(w)
	var sum float64
	for _, c := range w[:n-1] {
		sum += c.Volume
	}
	avg := sum / float64(n-1)
	if avg <= 0 {
		return 0
	}
	ratio := w[n-1].Volume / avg

	switch {
	case ratio >= 3:
		return 0.3
	case ratio >= 2:
		return 0.2
	case ratio >= 1.3:
		return 0.1
	case ratio < 0.5:
		return -0.05 // мёртвый объём — небольшой штраф
	}
	return 0
}

// volatilityScore — stddev доходностей; торгуемая полоса поощряется,
// слишком тихо — ноль, слишком дико — штраф.
func volatilityScore(w []models.CandleTick) float64 {
	rets := make([]float64, 0, len(w)-1)
	for i := 1; i < len(w); i++ {
		if w[i-1].Close <= 0 {
			return 0
		}
		rets = append(rets, (w[i].Close-w[i-1].Close)/w[i-1].Close)
	}

	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))
	std := math.Sqrt(variance)

	switch {
	case std >= 0.001 && std <= 0.02:
		return 0.2
	case std > 0.05:
		return -0.1
	}
	return 0
}

// rangeScore — позиция цены в недавнем high-low диапазоне плюс
// RSI-подобное отношение gain/loss по окну.
func rangeScore(w []models.CandleTick, ticker models.Ticker) float64 {
	lo, hi := w[0].Low, w[0].High
	for _, c := range w {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}

	price := ticker.Last
	if price <= 0 {
		price = w[len(w)-1].Close
	}

	var score float64
	if hi > lo {
		pos := (price - lo) / (hi - lo)
		switch {
		case pos <= 0.25:
			score += 0.15 // у дна диапазона — место для движения вверх
		case pos >= 0.9:
			score -= 0.15
		}
	}

	var gain, loss float64
	for i := 1; i < len(w); i++ {
		d := w[i].Close - w[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if gain+loss > 0 {
		rsi := 100 * gain / (gain + loss)
		switch {
		case rsi < 30:
			score += 0.15
		case rsi > 70:
			score -= 0.15
		}
	}

	return score
}
