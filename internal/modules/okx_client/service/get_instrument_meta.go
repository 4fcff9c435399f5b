package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"spot_bot/internal/models"
)

// GetInstrumentMeta — метаданные спотового инструмента с коротким TTL-кешем.
// Размеры отдаём decimal-ами: lotSz/minSz участвуют в нормализации ордера,
// где float даёт дрейф представления.
func (c *Client) GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error) {
	c.instMu.Lock()
	if inst, ok := c.instCache[instID]; ok && time.Since(inst.FetchedAt) < instrumentTTL {
		c.instMu.Unlock()
		return inst, nil
	}
	c.instMu.Unlock()

	data, err := c.get(ctx,
		"/api/v5/public/instruments?instType=SPOT&instId="+url.QueryEscape(instID))
	if err != nil {
		return models.Instrument{}, err
	}

	var rows []Instrument
	if err := json.Unmarshal(data, &rows); err != nil {
		return models.Instrument{}, fmt.Errorf("instruments decode: %w", err)
	}
	if len(rows) == 0 {
		return models.Instrument{}, fmt.Errorf("instrument %s not found", instID)
	}

	raw := rows[0]
	if raw.State != "" && raw.State != "live" {
		return models.Instrument{}, fmt.Errorf("instrument %s not live: state=%s", instID, raw.State)
	}

	parsePos := func(name, s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, fmt.Errorf("%s empty", name)
		}
		v, err := decimal.NewFromString(s)
		if err != nil || v.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("%s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	lotSz, err := parsePos("lotSz", raw.LotSz)
	if err != nil {
		return models.Instrument{}, err
	}
	minSz, err := parsePos("minSz", raw.MinSz)
	if err != nil {
		return models.Instrument{}, err
	}
	tickSz, err := parsePos("tickSz", raw.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}

	ticker, err := c.GetTicker(ctx, instID)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("ticker: %w", err)
	}
	if ticker.Last <= 0 {
		return models.Instrument{}, fmt.Errorf("lastPx <= 0: %.10f", ticker.Last)
	}

	inst := models.Instrument{
		InstID:    raw.InstID,
		LotSz:     lotSz,
		MinSz:     minSz,
		TickSz:    tickSz,
		LastPx:    ticker.Last,
		FetchedAt: time.Now(),
	}

	c.instMu.Lock()
	c.instCache[instID] = inst
	c.instMu.Unlock()

	return inst, nil
}

// InvalidateInstrument сбрасывает кеш после sizing-отказа биржи:
// лот/минимум могли поменяться.
func (c *Client) InvalidateInstrument(instID string) {
	c.instMu.Lock()
	delete(c.instCache, instID)
	c.instMu.Unlock()
}
