package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the submitted amounts must be internally consistent before the server
	// compares them with its own quote
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation checks subtotal against the items and total
// against subtotal+shipping+tax, to the cent. Absent fields are skipped.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	sum := decimal.Zero
	for _, it := range req.Items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if req.Subtotal != nil && !cents(*req.Subtotal).Equal(sum.Round(2)) {
		sl.ReportError(*req.Subtotal, "subtotal", "Subtotal", "subtotal_match_items",
			fmt.Sprintf("items sum %s != subtotal %.2f", sum.StringFixed(2), *req.Subtotal))
	}

	if req.Subtotal == nil || req.ShippingCost == nil || req.Tax == nil || req.TotalAmount == nil {
		return
	}
	parts := cents(*req.Subtotal).Add(cents(*req.ShippingCost)).Add(cents(*req.Tax))
	if !cents(*req.TotalAmount).Equal(parts) {
		sl.ReportError(*req.TotalAmount, "totalAmount", "TotalAmount", "total_match_parts",
			fmt.Sprintf("subtotal+shipping+tax %s != total %.2f", parts.StringFixed(2), *req.TotalAmount))
	}
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
