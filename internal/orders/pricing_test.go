package orders

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func f(v float64) *float64 { return &v }

func TestPricingQuote(t *testing.T) {
	p := Pricing{
		TaxRate:               decimal.NewFromFloat(0.18),
		FreeShippingThreshold: decimal.NewFromInt(999),
		ShippingFee:           decimal.NewFromInt(99),
		Tolerance:             decimal.NewFromFloat(0.01),
	}

	q := p.Quote([]LineItem{{Price: 499.5, Quantity: 1}})
	if !q.Shipping.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("expected shipping fee below threshold, got %s", q.Shipping)
	}
	if q.Tax.StringFixed(2) != "89.91" {
		t.Fatalf("tax = %s, want 89.91", q.Tax.StringFixed(2))
	}
	if !q.Total.Equal(q.Subtotal.Add(q.Shipping).Add(q.Tax)) {
		t.Fatalf("total is not subtotal+shipping+tax")
	}

	q = p.Quote([]LineItem{{Price: 1000, Quantity: 2}})
	if !q.Shipping.IsZero() {
		t.Fatalf("expected free shipping at 2000, got %s", q.Shipping)
	}
}

func TestPricingCheck(t *testing.T) {
	p := DefaultPricing()
	q := p.Quote([]LineItem{{Price: 1000, Quantity: 2}})

	if err := p.Check(q, AmountHints{Subtotal: f(2000), ShippingCost: f(0), Tax: f(0), TotalAmount: f(2000)}); err != nil {
		t.Fatalf("matching hints rejected: %v", err)
	}
	if err := p.Check(q, AmountHints{}); err != nil {
		t.Fatalf("absent hints rejected: %v", err)
	}
	if err := p.Check(q, AmountHints{TotalAmount: f(1500)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for diverging total, got %v", err)
	}
	if err := p.Check(q, AmountHints{TotalAmount: f(2000.004)}); err != nil {
		t.Fatalf("drift within tolerance rejected: %v", err)
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.UnixMilli(1760000000123)
	n := NewOrderNumber(now)
	if !regexp.MustCompile(`^ORD-1760000000123-[0-9A-F]{8}$`).MatchString(n) {
		t.Fatalf("unexpected order number %q", n)
	}
	if NewOrderNumber(now) == n {
		t.Fatalf("order numbers must not repeat")
	}
}

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }
