package service

import (
	"testing"
	"time"

	"spot_bot/internal/models"
)

func tick(vol float64) models.Ticker {
	return models.Ticker{InstID: "X-USDT", Last: 1, Vol24h: vol, Timestamp: time.Now()}
}

func TestTickerBufferEvictsOldest(t *testing.T) {
	b := newTickerBuffer(3)
	for i := 1; i <= 5; i++ {
		b.push(models.Ticker{Last: float64(i)})
	}
	got := b.tail(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Last != 3 || got[2].Last != 5 {
		t.Fatalf("eviction order broken: %v..%v", got[0].Last, got[2].Last)
	}
}

func TestVolumeSpikeNeedsWarmup(t *testing.T) {
	b := newTickerBuffer(50)
	for i := 0; i < spikeMinSamples-1; i++ {
		b.push(tick(100))
	}
	if spike, _ := b.volumeSpike(2.5); spike {
		t.Fatal("spike must not fire before warmup")
	}
}

func TestVolumeSpikeFires(t *testing.T) {
	b := newTickerBuffer(50)
	for i := 0; i < 20; i++ {
		b.push(tick(100))
	}
	b.push(tick(300))
	spike, factor := b.volumeSpike(2.5)
	if !spike {
		t.Fatalf("spike not detected, factor=%v", factor)
	}
	if factor < 2.9 || factor > 3.1 {
		t.Fatalf("factor = %v, want ~3", factor)
	}

	// обычный объём спайком не считается
	b.push(tick(100))
	if spike, _ := b.volumeSpike(2.5); spike {
		t.Fatal("flat volume reported as spike")
	}
}

func TestBuyFlowRatio(t *testing.T) {
	now := time.Now()
	b := newTradeBuffer(100)

	// вне окна — не учитывается
	b.push(models.Trade{Side: "sell", Price: 1, Size: 1000, Timestamp: now.Add(-5 * time.Minute)})
	b.push(models.Trade{Side: "buy", Price: 1, Size: 30, Timestamp: now.Add(-10 * time.Second)})
	b.push(models.Trade{Side: "sell", Price: 1, Size: 10, Timestamp: now.Add(-5 * time.Second)})

	ratio := b.buyFlowRatio(now, time.Minute)
	if ratio < 0.74 || ratio > 0.76 {
		t.Fatalf("ratio = %v, want 0.75", ratio)
	}
}

func TestBuyFlowRatioEmptyWindow(t *testing.T) {
	b := newTradeBuffer(10)
	if r := b.buyFlowRatio(time.Now(), time.Minute); r != 0.5 {
		t.Fatalf("empty window ratio = %v, want 0.5", r)
	}
}

func TestBackoffNonDecreasingAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoffDelay(attempt)
		if d < prev {
			t.Fatalf("attempt %d: backoff decreased %s -> %s", attempt, prev, d)
		}
		if d > backoffMax {
			t.Fatalf("attempt %d: backoff %s above cap", attempt, d)
		}
		prev = d
	}
	if backoffDelay(20) != backoffMax {
		t.Fatal("backoff must saturate at cap")
	}
}
