package service

import (
	"errors"
	"fmt"
)

// TransientError — сетевой таймаут, обрыв, 5xx. GET можно ретраить,
// POST (ордера) — никогда: дубль маркет-ордера хуже пропущенного.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError — биржа приняла запрос и ответила ошибкой уровня приложения
// (недостаточно баланса, неверный инструмент, размер ниже минимума).
type APIError struct {
	Op         string
	Code       string
	Msg        string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: okx rejected: code=%s msg=%s http=%d", e.Op, e.Code, e.Msg, e.HTTPStatus)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
