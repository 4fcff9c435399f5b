package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"spot_bot/internal/models"
)

// GetTicker — снапшот тикера /market/ticker.
func (c *Client) GetTicker(ctx context.Context, instID string) (models.Ticker, error) {
	data, err := c.get(ctx, "/api/v5/market/ticker?instId="+url.QueryEscape(instID))
	if err != nil {
		return models.Ticker{}, err
	}

	var rows []tickerRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return models.Ticker{}, fmt.Errorf("ticker decode: %w", err)
	}
	if len(rows) == 0 {
		return models.Ticker{}, fmt.Errorf("ticker %s: empty data", instID)
	}

	r := rows[0]
	last, err := strconv.ParseFloat(r.Last, 64)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("ticker %s: last parse: %w", instID, err)
	}
	bid, _ := strconv.ParseFloat(r.BidPx, 64)
	ask, _ := strconv.ParseFloat(r.AskPx, 64)
	vol, _ := strconv.ParseFloat(r.Vol24h, 64)

	ts := time.Now()
	if ms, err := strconv.ParseInt(r.Ts, 10, 64); err == nil {
		ts = time.UnixMilli(ms)
	}

	return models.Ticker{
		InstID:    r.InstID,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		Vol24h:    vol,
		Timestamp: ts,
	}, nil
}

// GetCandles — история закрытых свечей, от старых к новым.
// OKX отдаёт новые первыми, поэтому разворачиваем.
func (c *Client) GetCandles(ctx context.Context, instID, bar string, limit int) ([]models.CandleTick, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d",
		url.QueryEscape(instID), url.QueryEscape(bar), limit)

	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("candles decode: %w", err)
	}

	out := make([]models.CandleTick, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
		if len(row) < 6 {
			continue
		}
		if row[len(row)-1] != "1" {
			continue // только закрытые свечи
		}

		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		high, err2 := strconv.ParseFloat(row[2], 64)
		low, err3 := strconv.ParseFloat(row[3], 64)
		closep, err4 := strconv.ParseFloat(row[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if closep <= 0 {
			continue
		}
		vol, _ := strconv.ParseFloat(row[5], 64)

		var volQuote float64
		if len(row) >= 8 {
			volQuote, _ = strconv.ParseFloat(row[7], 64)
		}

		out = append(out, models.CandleTick{
			InstID:      instID,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closep,
			Volume:      vol,
			QuoteVolume: volQuote,
			Start:       time.UnixMilli(tsMs),
		})
	}

	return out, nil
}

// HasCandles — есть ли у OKX история по символу (фильтр watchlist на старте).
func (c *Client) HasCandles(ctx context.Context, instID, bar string) bool {
	candles, err := c.GetCandles(ctx, instID, bar, 1)
	return err == nil && len(candles) > 0
}
