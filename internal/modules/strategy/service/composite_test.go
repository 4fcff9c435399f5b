package service

import (
	"math/rand"
	"testing"

	"spot_bot/internal/models"
)

func flatCandles(n int, px, vol float64) []models.CandleTick {
	out := make([]models.CandleTick, n)
	for i := range out {
		out[i] = models.CandleTick{Open: px, High: px, Low: px, Close: px, Volume: vol}
	}
	return out
}

func TestScoreNeutralOnShortHistory(t *testing.T) {
	e := NewComposite()
	sig := e.Score("X-USDT", flatCandles(minSamples-1, 1, 100), models.Ticker{Last: 1})
	if sig.Score != 0 {
		t.Fatalf("score = %v on insufficient data, want 0", sig.Score)
	}
}

func TestScoreBounded(t *testing.T) {
	e := NewComposite()
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 500; trial++ {
		candles := make([]models.CandleTick, minSamples+rng.Intn(30))
		px := 0.5 + rng.Float64()*100
		for i := range candles {
			px *= 1 + (rng.Float64()-0.5)*0.2
			if px <= 0 {
				px = 0.0001
			}
			hi := px * (1 + rng.Float64()*0.05)
			lo := px * (1 - rng.Float64()*0.05)
			candles[i] = models.CandleTick{
				Open: px, High: hi, Low: lo, Close: px,
				Volume: rng.Float64() * 1e6,
			}
		}
		sig := e.Score("R-USDT", candles, models.Ticker{Last: px})
		if sig.Score < -1 || sig.Score > 1 {
			t.Fatalf("trial %d: score %v out of [-1,1]", trial, sig.Score)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	e := NewComposite()
	candles := flatCandles(minSamples, 2, 100)
	// восходящий хвост
	for i := 0; i < shortWindow; i++ {
		c := &candles[minSamples-shortWindow+i]
		c.Close = 2 * (1 + 0.01*float64(i+1))
		c.High = c.Close * 1.001
	}
	t1 := e.Score("X-USDT", candles, models.Ticker{Last: candles[minSamples-1].Close})
	t2 := e.Score("X-USDT", candles, models.Ticker{Last: candles[minSamples-1].Close})
	if t1 != t2 {
		t.Fatalf("score not reproducible: %+v vs %+v", t1, t2)
	}
}

func TestMomentumComponentSigns(t *testing.T) {
	up := flatCandles(minSamples, 1, 100)
	for i := longWindow; i < minSamples; i++ {
		up[i].Close = 1.05
	}
	if m := momentumScore(up); m != 0.35 {
		t.Fatalf("strong up momentum = %v, want 0.35", m)
	}

	down := flatCandles(minSamples, 1, 100)
	for i := longWindow; i < minSamples; i++ {
		down[i].Close = 0.95
	}
	if m := momentumScore(down); m != -0.35 {
		t.Fatalf("strong down momentum = %v, want -0.35", m)
	}

	if m := momentumScore(flatCandles(minSamples, 1, 100)); m != 0 {
		t.Fatalf("flat momentum = %v, want 0", m)
	}
}

func TestVolumeComponent(t *testing.T) {
	w := flatCandles(minSamples, 1, 100)
	w[minSamples-1].Volume = 350
	if v := volumeScore(w); v != 0.3 {
		t.Fatalf("spike volume = %v, want 0.3", v)
	}

	w[minSamples-1].Volume = 10
	if v := volumeScore(w); v != -0.05 {
		t.Fatalf("dead volume = %v, want -0.05", v)
	}
}

func TestVolatilityBand(t *testing.T) {
	// знакопеременные доходности ~0.5% — внутри торгуемой полосы
	w := flatCandles(minSamples, 1, 100)
	px := 1.0
	for i := range w {
		if i%2 == 0 {
			px *= 1.005
		} else {
			px /= 1.005
		}
		w[i].Close = px
	}
	if v := volatilityScore(w); v != 0.2 {
		t.Fatalf("tradeable volatility = %v, want 0.2", v)
	}

	if v := volatilityScore(flatCandles(minSamples, 1, 100)); v != 0 {
		t.Fatalf("zero volatility = %v, want 0", v)
	}
}
