package service

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"spot_bot/internal/models"
)

const (
	publicWSURL = "wss://ws.okx.com:8443/ws/v5/public"

	backoffBase = time.Second
	backoffMax  = 30 * time.Second

	// после скольких подряд неудачных пингов рвём соединение
	pingFailLimit = 2
)

// backoffDelay — экспоненциальная задержка переподключения с потолком.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}

// Run держит соединение до отмены ctx: connect → subscribe → read loop →
// reconnect с backoff. Никогда не возвращается раньше отмены.
func (c *Client) Run(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		log.Println("[WS] пустой список символов — фид не запущен")
		return
	}

	args := make([]map[string]string, 0, 2*len(symbols))
	for _, s := range symbols {
		args = append(args,
			map[string]string{"channel": "tickers", "instId": s},
			map[string]string{"channel": "trades", "instId": s},
		)
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Printf("[WS] connect %s, %d symbols", c.wsURL, len(symbols))
		conn, _, err := c.wsDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			attempt++
			c.reconnects.Add(1)
			delay := backoffDelay(attempt)
			log.Printf("[WS] dial error (attempt %d, wait %s): %v", attempt, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		sub := map[string]any{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("[WS] subscribe error: %v", err)
			_ = conn.Close()
			attempt++
			continue
		}

		attempt = 0
		c.connected.Store(true)

		// heartbeat: при простое шлём ping, два провала подряд — reconnect
		stopPing := make(chan struct{})
		go c.heartbeat(ctx, conn, stopPing)

		// на тихом канале ReadMessage может висеть бесконечно — отмена ctx
		// закрывает соединение и разблокирует читателя
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stopPing:
			}
		}()

		c.readLoop(ctx, conn)

		close(stopPing)
		c.connected.Store(false)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			attempt++
			c.reconnects.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffDelay(attempt)):
			}
		}
	}
}

type wsConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
	Close() error
}

func (c *Client) heartbeat(ctx context.Context, conn wsConn, stop <-chan struct{}) {
	idle := c.cfg.Feed.IdleThreshold
	if idle <= 0 {
		idle = 25 * time.Second
	}

	t := time.NewTicker(idle)
	defer t.Stop()

	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			// сообщения ходят — пинговать незачем
			if ns := c.lastMsgNs.Load(); ns > 0 && time.Since(time.Unix(0, ns)) < idle {
				fails = 0
				continue
			}
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				fails++
				log.Printf("[WS] ping failed (%d/%d): %v", fails, pingFailLimit, err)
				if fails >= pingFailLimit {
					_ = conn.Close() // уронит readLoop → reconnect
					return
				}
				continue
			}
			fails = 0
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn wsConn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] read error: %v", err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		procStart := time.Now()
		c.handleFrame(msg)
		c.noteMessage(procStart)
	}
}

func (c *Client) handleFrame(msg []byte) {
	var frame struct {
		Event string `json:"event"`
		Arg   struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Event != "" || len(frame.Data) == 0 {
		return // subscribe-ack, pong и прочий служебный трафик
	}

	switch frame.Arg.Channel {
	case "tickers":
		var rows []struct {
			InstID string `json:"instId"`
			Last   string `json:"last"`
			BidPx  string `json:"bidPx"`
			AskPx  string `json:"askPx"`
			Vol24h string `json:"vol24h"`
			Ts     string `json:"ts"`
		}
		if err := json.Unmarshal(frame.Data, &rows); err != nil {
			return
		}
		for _, r := range rows {
			last, err := strconv.ParseFloat(r.Last, 64)
			if err != nil || last <= 0 {
				continue
			}
			bid, _ := strconv.ParseFloat(r.BidPx, 64)
			ask, _ := strconv.ParseFloat(r.AskPx, 64)
			vol, _ := strconv.ParseFloat(r.Vol24h, 64)

			ts := time.Now()
			if ms, err := strconv.ParseInt(r.Ts, 10, 64); err == nil {
				ts = time.UnixMilli(ms)
			}

			c.onTicker(models.Ticker{
				InstID:    r.InstID,
				Last:      last,
				Bid:       bid,
				Ask:       ask,
				Vol24h:    vol,
				Timestamp: ts,
			})
		}

	case "trades":
		var rows []struct {
			InstID string `json:"instId"`
			Px     string `json:"px"`
			Sz     string `json:"sz"`
			Side   string `json:"side"`
			Ts     string `json:"ts"`
		}
		if err := json.Unmarshal(frame.Data, &rows); err != nil {
			return
		}
		for _, r := range rows {
			px, err1 := strconv.ParseFloat(r.Px, 64)
			sz, err2 := strconv.ParseFloat(r.Sz, 64)
			if err1 != nil || err2 != nil || px <= 0 || sz <= 0 {
				continue
			}

			ts := time.Now()
			if ms, err := strconv.ParseInt(r.Ts, 10, 64); err == nil {
				ts = time.UnixMilli(ms)
			}

			c.onTrade(models.Trade{
				InstID:    r.InstID,
				Price:     px,
				Size:      sz,
				Side:      r.Side,
				Timestamp: ts,
			})
		}
	}
}
