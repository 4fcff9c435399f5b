package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"spot_bot/internal/sizing"
)

// PlaceMarketOrder — спотовый маркет-ордер. size уже нормализован под
// lotSz/minSz инструмента; tgtCcy=base_ccy, чтобы sz трактовался как
// количество базовой валюты и для buy, и для sell.
func (c *Client) PlaceMarketOrder(ctx context.Context, side string, size sizing.OrderSize) (string, error) {
	side = strings.ToLower(side)
	if side != "buy" && side != "sell" {
		return "", fmt.Errorf("place market: unsupported side=%q", side)
	}

	body := map[string]string{
		"instId":  size.InstID,
		"tdMode":  "cash",
		"side":    side,
		"ordType": "market",
		"sz":      size.String(),
		"tgtCcy":  "base_ccy",
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("place market marshal: %w", err)
	}

	data, err := c.post(ctx, "/api/v5/trade/order", string(payload))
	if err != nil {
		return "", err
	}

	var acks []orderAck
	if err := json.Unmarshal(data, &acks); err != nil {
		return "", fmt.Errorf("place market decode: %w; data=%s", err, string(data))
	}
	if len(acks) == 0 {
		return "", fmt.Errorf("place market: empty ack")
	}

	// детальный статус по ордеру
	if acks[0].SCode != "" && acks[0].SCode != "0" {
		return "", &APIError{
			Op:   "POST /api/v5/trade/order",
			Code: acks[0].SCode,
			Msg:  acks[0].SMsg,
		}
	}
	if acks[0].OrdID == "" {
		return "", fmt.Errorf("place market: empty ordId")
	}

	return acks[0].OrdID, nil
}
