package runner

import (
	"context"
	"testing"

	"spot_bot/internal/models"
	okxws "spot_bot/internal/modules/okx_websocket/service"
)

type fakeMarketData struct {
	lastCtxErr error
}

func (f *fakeMarketData) GetCandles(context.Context, string, string, int) ([]models.CandleTick, error) {
	return nil, nil
}

func (f *fakeMarketData) GetTicker(ctx context.Context, instID string) (models.Ticker, error) {
	f.lastCtxErr = ctx.Err()
	if ctx.Err() != nil {
		return models.Ticker{}, ctx.Err()
	}
	return models.Ticker{InstID: instID, Last: 2.5}, nil
}

func (f *fakeMarketData) HasCandles(context.Context, string, string) bool { return true }

// REST-фолбэк цены живёт в контексте цикла и умирает вместе с ним.
func TestCurrentPriceFallbackHonorsLoopContext(t *testing.T) {
	cfg := testCfg()
	md := &fakeMarketData{}
	feed := okxws.NewClient(cfg)
	mgr, _, _ := newTestManager(cfg, newFakeExchange())

	r := New(cfg, md, feed, nil, mgr, nil)
	r.ctx, r.cancel = context.WithCancel(context.Background())

	if px := r.currentPrice("X-USDT"); px != 2.5 {
		t.Fatalf("fallback price = %v, want 2.5", px)
	}

	r.cancel()
	if px := r.currentPrice("X-USDT"); px != 0 {
		t.Fatalf("price after stop = %v, want 0", px)
	}
	if md.lastCtxErr == nil {
		t.Fatal("fallback must carry the loop context")
	}
}
