package service

import "spot_bot/internal/models"

type Engine interface {
	// Score оценивает символ по свечам (от старых к новым) и тикеру.
	// Score ∈ [-1, 1]; 0 при нехватке данных — на голодных данных не торгуем.
	Score(symbol string, candles []models.CandleTick, ticker models.Ticker) models.Signal

	Name() string
}
