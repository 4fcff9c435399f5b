package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument — метаданные спотового инструмента OKX после парсинга.
// Неизменяемый снапшот, живёт в кеше клиента с коротким TTL.
type Instrument struct {
	InstID string
	MinSz  decimal.Decimal
	LotSz  decimal.Decimal
	TickSz decimal.Decimal
	LastPx float64

	FetchedAt time.Time
}

// CandleTick — закрытая свеча из REST/WS.
type CandleTick struct {
	InstID      string
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Start       time.Time
	End         time.Time
}

// Ticker — снапшот тикера (канал tickers либо REST /market/ticker).
type Ticker struct {
	InstID    string
	Last      float64
	Bid       float64
	Ask       float64
	Vol24h    float64 // объём за 24ч в базовой валюте
	Timestamp time.Time
}

// Trade — отдельная сделка из канала trades.
type Trade struct {
	InstID    string
	Price     float64
	Size      float64
	Side      string // "buy" / "sell"
	Timestamp time.Time
}
