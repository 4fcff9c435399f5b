package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
)

const (
	baseURL = "https://www.okx.com"

	// TTL кеша метаданных инструмента; после sizing-отказа кеш сбрасывается
	// принудительно через Invalidate.
	instrumentTTL = 5 * time.Minute

	// сколько дополнительных попыток даём GET-запросам на transient-ошибках
	getRetries = 2
)

type Client struct {
	cfg  *config.Config
	http *http.Client

	apiKey    string
	apiSecret string
	passph    string

	instMu    sync.Mutex
	instCache map[string]models.Instrument
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: 10 * time.Second},
		apiKey:    cfg.OKX.APIKey,
		apiSecret: cfg.OKX.APISecret,
		passph:    cfg.OKX.Passphrase,
		instCache: make(map[string]models.Instrument),
	}
}

// sign — base64(HMAC-SHA256(secret, ts+METHOD+path+body)).
// path подписывается вместе с query string, ровно как уходит в запрос.
func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// request — один подписанный HTTP-запрос без ретраев.
// Возвращает data-часть конверта {code,msg,data}.
func (c *Client) request(ctx context.Context, method, requestPath, body string) (json.RawMessage, error) {
	op := method + " " + requestPath

	// timestamp в заголовке и в подписи обязан совпадать до миллисекунды,
	// иначе 100% запросов упадут с ошибкой аутентификации
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+requestPath, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}

	if resp.StatusCode/100 == 5 {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{Op: op, Code: fmt.Sprint(resp.StatusCode), Msg: string(rb), HTTPStatus: resp.StatusCode}
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rb, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	if envelope.Code != "0" {
		return nil, &APIError{Op: op, Code: envelope.Code, Msg: envelope.Msg, HTTPStatus: resp.StatusCode}
	}

	return envelope.Data, nil
}

// get — GET с ограниченным ретраем transient-ошибок.
func (c *Client) get(ctx context.Context, requestPath string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= getRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		data, err := c.request(ctx, http.MethodGet, requestPath, "")
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// post — без ретраев. Ордер с неизвестным статусом нельзя переотправлять.
func (c *Client) post(ctx context.Context, requestPath, body string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, requestPath, body)
}
