package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Pricing holds the declarative shipping and tax rules applied at checkout.
type Pricing struct {
	TaxRate               decimal.Decimal // e.g. 0.18
	FreeShippingThreshold decimal.Decimal // subtotal at or above which shipping is free
	ShippingFee           decimal.Decimal // flat fee below the threshold
	Tolerance             decimal.Decimal // allowed drift of client-submitted amounts
}

// DefaultPricing: free shipping from 999, otherwise 99, no tax.
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.Zero,
		FreeShippingThreshold: decimal.NewFromInt(999),
		ShippingFee:           decimal.NewFromInt(99),
		Tolerance:             decimal.NewFromFloat(0.01),
	}
}

// Quote is a server-computed breakdown. Total is always Subtotal+Shipping+Tax.
type Quote struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// PriceBook resolves authoritative unit prices from the catalog.
type PriceBook interface {
	UnitPrice(ctx context.Context, productID string) (price float64, found bool, err error)
}

// Quote prices items under p.
func (p Pricing) Quote(items []LineItem) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)

	shipping := p.ShippingFee.Round(2)
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)

	return Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// AmountHints are the totals a client displayed at checkout. Nil fields were not sent.
type AmountHints struct {
	Subtotal     *float64
	ShippingCost *float64
	Tax          *float64
	TotalAmount  *float64
}

// Check fails with ErrValidation when a supplied hint drifts from q beyond the tolerance.
func (p Pricing) Check(q Quote, h AmountHints) error {
	fields := []struct {
		name string
		hint *float64
		want decimal.Decimal
	}{
		{"subtotal", h.Subtotal, q.Subtotal},
		{"shippingCost", h.ShippingCost, q.Shipping},
		{"tax", h.Tax, q.Tax},
		{"totalAmount", h.TotalAmount, q.Total},
	}
	for _, f := range fields {
		if f.hint == nil {
			continue
		}
		if decimal.NewFromFloat(*f.hint).Sub(f.want).Abs().GreaterThan(p.Tolerance) {
			return fmt.Errorf("%w: %s %.2f does not match server amount %s", ErrValidation, f.name, *f.hint, f.want.StringFixed(2))
		}
	}
	return nil
}
