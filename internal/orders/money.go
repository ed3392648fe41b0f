package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (paise). Order amounts are stored
// this way so totals add up exactly; JSON renders it in major units.
type Money int64

// NewMoney rounds d half away from zero to the nearest minor unit.
func NewMoney(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

// MoneyOf converts a major-unit amount, e.g. 19.99.
func MoneyOf(v float64) Money { return NewMoney(decimal.NewFromFloat(v)) }

func (m Money) Minor() int64             { return int64(m) }
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }
func (m Money) Float64() float64         { return m.Decimal().InexactFloat64() }
func (m Money) String() string           { return m.Decimal().StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) { return []byte(m.Decimal().String()), nil }

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*m = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*m = NewMoney(d)
	return nil
}
