package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position — открытая спотовая позиция. Создаётся только после успешного
// исполнения входного ордера, мутируется только менеджером позиций.
type Position struct {
	Symbol    string
	Qty       decimal.Decimal
	Entry     decimal.Decimal // цена входа (референсная, fill может отличаться)
	Invested  decimal.Decimal // вложенный notional в USDT
	OrderID   string
	EntryTime time.Time
}

// CloseReason — причина выхода из позиции.
type CloseReason string

const (
	CloseProfit    CloseReason = "profit"
	CloseStopLoss  CloseReason = "stop-loss"
	CloseTimeLimit CloseReason = "time-limit"
)

// ClosedTrade — запись о закрытой сделке (для статистики и журнала).
type ClosedTrade struct {
	Symbol   string
	Qty      decimal.Decimal
	Entry    decimal.Decimal
	Exit     decimal.Decimal
	Invested decimal.Decimal
	PnL      decimal.Decimal // реализованный P&L в USDT
	Reason   CloseReason
	OrderID  string
	OpenedAt time.Time
	ClosedAt time.Time
}

// TradeStats — накопительная статистика по закрытым сделкам.
type TradeStats struct {
	Trades int
	Wins   int
	PnL    decimal.Decimal
}

func (s TradeStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}
