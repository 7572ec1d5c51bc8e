package order

import (
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ComputeAmount calculates the order total from its lines and an optional
// order-level discount. Per-line discounts adjust the unit price before it is
// multiplied by the quantity: a fixed discount subtracts its value (the unit
// price may go negative transiently), a percentage discount scales it by
// (1 - rate/100). The order-level discount is then applied to the running
// total with the same two modes.
//
// All intermediate arithmetic is exact decimal so percentage fractions
// survive the summation; the result is floored to whole minor units exactly
// once, at the end, and clamped to zero when it comes out non-positive.
// The function is pure and deterministic.
func ComputeAmount(lines []Line, orderDiscount *Discount) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		price := discounted(l.UnitPrice, l.Discount)
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	total = discounted(total, orderDiscount)

	total = total.Floor()
	if total.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return total
}

func discounted(v decimal.Decimal, d *Discount) decimal.Decimal {
	if d == nil {
		return v
	}
	switch d.Way {
	case catalog.DiscountFixed:
		return v.Sub(d.Rate)
	case catalog.DiscountPercentage:
		return v.Mul(one.Sub(d.Rate.Div(hundred)))
	default:
		return v
	}
}
