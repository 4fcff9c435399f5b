package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// USDTBalance — доступный баланс USDT на торговом счёте.
func (c *Client) USDTBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := c.get(ctx, "/api/v5/account/balance?ccy=USDT")
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Details []balanceDetail `json:"details"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("balance decode: %w", err)
	}

	for _, r := range rows {
		for _, det := range r.Details {
			if det.Ccy != "USDT" {
				continue
			}
			s := det.AvailBal
			if s == "" {
				s = det.CashBal
			}
			v, err := decimal.NewFromString(s)
			if err != nil {
				return decimal.Zero, fmt.Errorf("balance parse %q: %w", s, err)
			}
			return v, nil
		}
	}

	// счёт без USDT — это просто ноль, не ошибка
	return decimal.Zero, nil
}
