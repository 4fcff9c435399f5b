package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BelowMinimumError — локальный отказ до похода на биржу: после округления
// вниз размер не дотягивает до minSz инструмента.
type BelowMinimumError struct {
	InstID   string
	Computed decimal.Decimal
	Required decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("sizing rejected %s: computed=%s < minSz=%s",
		e.InstID, e.Computed.String(), e.Required.String())
}

// OrderSize — биржевой размер ордера. Строка формируется с точностью lotSz,
// чтобы не отправить на OKX лишние знаки.
type OrderSize struct {
	Qty    decimal.Decimal
	Exp    int32 // показатель lotSz, для форматирования
	InstID string
}

// String — точное десятичное представление без лишней точности.
func (s OrderSize) String() string {
	return s.Qty.StringFixed(-s.Exp)
}

// Notional — стоимость размера по данной цене.
func (s OrderSize) Notional(price decimal.Decimal) decimal.Decimal {
	return s.Qty.Mul(price)
}

// Normalize приводит желаемый notional к легальному размеру ордера:
// qty = notional/price, округление ВНИЗ до кратного lotSz (никогда вверх —
// превысить доступный баланс из-за округления нельзя), затем проверка minSz.
func Normalize(instID string, notional, price, minSz, lotSz decimal.Decimal) (OrderSize, error) {
	if price.Sign() <= 0 {
		return OrderSize{}, fmt.Errorf("normalize %s: price <= 0", instID)
	}
	if lotSz.Sign() <= 0 {
		return OrderSize{}, fmt.Errorf("normalize %s: lotSz <= 0", instID)
	}

	raw := notional.Div(price)

	// floor до кратного lotSz
	steps := raw.Div(lotSz).Floor()
	qty := steps.Mul(lotSz)

	if qty.Cmp(minSz) < 0 {
		return OrderSize{}, &BelowMinimumError{
			InstID:   instID,
			Computed: qty,
			Required: minSz,
		}
	}

	return OrderSize{Qty: qty, Exp: lotSz.Exponent(), InstID: instID}, nil
}

// NormalizeQty приводит уже удерживаемое количество к текущему lotSz
// (лот мог поменяться с момента входа). Та же семантика floor/minSz.
func NormalizeQty(instID string, qty, minSz, lotSz decimal.Decimal) (OrderSize, error) {
	if lotSz.Sign() <= 0 {
		return OrderSize{}, fmt.Errorf("normalize %s: lotSz <= 0", instID)
	}

	floored := qty.Div(lotSz).Floor().Mul(lotSz)
	if floored.Cmp(minSz) < 0 {
		return OrderSize{}, &BelowMinimumError{
			InstID:   instID,
			Computed: floored,
			Required: minSz,
		}
	}

	return OrderSize{Qty: floored, Exp: lotSz.Exponent(), InstID: instID}, nil
}
