package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNormalizeFloorsToLot(t *testing.T) {
	// сценарий из низколиквидной монеты: notional=1.00, px=0.0001234,
	// raw=8103.7..., floor по lotSz=10 => 8100
	sz, err := Normalize("X-USDT", d("1.00"), d("0.0001234"), d("100"), d("10"))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := sz.Qty.String(); got != "8100" {
		t.Fatalf("qty = %s, want 8100", got)
	}
	if sz.String() != "8100" {
		t.Fatalf("size string = %q, want 8100", sz.String())
	}
	// итоговый notional не превышает желаемый
	if sz.Notional(d("0.0001234")).Cmp(d("1.00")) > 0 {
		t.Fatalf("notional %s > desired", sz.Notional(d("0.0001234")))
	}
}

func TestNormalizeBelowMinimum(t *testing.T) {
	_, err := Normalize("X-USDT", d("0.005"), d("0.0001234"), d("100"), d("10"))
	var bm *BelowMinimumError
	if !errors.As(err, &bm) {
		t.Fatalf("want BelowMinimumError, got %v", err)
	}
	if bm.Required.String() != "100" {
		t.Fatalf("required = %s, want 100", bm.Required)
	}
	if bm.Computed.Cmp(bm.Required) >= 0 {
		t.Fatalf("computed %s must be < required %s", bm.Computed, bm.Required)
	}
}

func TestNormalizePrecisionMatchesLot(t *testing.T) {
	cases := []struct {
		lot  string
		want string
	}{
		{"0.001", "12.345"},
		{"0.01", "12.34"},
		{"1", "12"},
	}
	for _, c := range cases {
		sz, err := Normalize("OK-USDT", d("123.456"), d("10"), d("0.0001"), d(c.lot))
		if err != nil {
			t.Fatalf("lot %s: %v", c.lot, err)
		}
		if sz.String() != c.want {
			t.Fatalf("lot %s: size string = %q, want %q", c.lot, sz.String(), c.want)
		}
	}
}

// Повторная нормализация уже легального размера — no-op.
func TestNormalizeIdempotent(t *testing.T) {
	price := d("0.0001234")
	first, err := Normalize("X-USDT", d("1.00"), price, d("100"), d("10"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := Normalize("X-USDT", first.Notional(price), price, d("100"), d("10"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !first.Qty.Equal(second.Qty) {
		t.Fatalf("idempotence broken: %s != %s", first.Qty, second.Qty)
	}
}

// floor никогда не превышает желаемый notional — прогоняем сетку входов.
func TestNormalizeNeverExceedsNotional(t *testing.T) {
	notionals := []string{"0.5", "1", "7.77", "25.0001", "1000"}
	prices := []string{"0.0001234", "0.051", "1", "3.1415", "42000"}
	lots := []string{"0.00000001", "0.0001", "0.1", "1", "10"}

	for _, n := range notionals {
		for _, p := range prices {
			for _, l := range lots {
				sz, err := Normalize("G-USDT", d(n), d(p), d("0"), d(l))
				if err != nil {
					t.Fatalf("n=%s p=%s lot=%s: %v", n, p, l, err)
				}
				if sz.Notional(d(p)).Cmp(d(n)) > 0 {
					t.Fatalf("n=%s p=%s lot=%s: notional %s exceeds desired",
						n, p, l, sz.Notional(d(p)))
				}
				// кратность lotSz
				if !sz.Qty.Mod(d(l)).IsZero() {
					t.Fatalf("n=%s p=%s lot=%s: qty %s not a lot multiple", n, p, l, sz.Qty)
				}
			}
		}
	}
}
