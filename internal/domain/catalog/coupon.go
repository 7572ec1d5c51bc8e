package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountWay selects how a coupon's rate is applied to a price.
type DiscountWay string

const (
	// DiscountPercentage subtracts rate percent of the price.
	DiscountPercentage DiscountWay = "percentage"
	// DiscountFixed subtracts the rate as a flat amount.
	DiscountFixed DiscountWay = "fixed"
)

// Valid reports whether w is a known discount way.
func (w DiscountWay) Valid() bool {
	return w == DiscountPercentage || w == DiscountFixed
}

// Coupon is a discount rule, applicable to a single line or a whole order.
// Coupons are soft-deleted: a deleted coupon stays resolvable for orders
// that already reference it but is excluded from listings.
type Coupon struct {
	ID           string          `json:"couponId"`
	DiscountWay  DiscountWay     `json:"discountWay"`
	DiscountRate decimal.Decimal `json:"discountRate"`
	Description  string          `json:"description,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	Deleted      bool            `json:"deleted,omitempty"`
}

// CouponNotFoundError reports an unknown coupon id.
type CouponNotFoundError struct {
	CouponID string
}

func (e *CouponNotFoundError) Error() string {
	return fmt.Sprintf("coupon %s not found", e.CouponID)
}

// CouponRepository provides read access to coupons.
type CouponRepository interface {
	// GetByID returns the coupon, deleted or not, or *CouponNotFoundError.
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// ListActive returns the coupons usable for new orders.
	ListActive(ctx context.Context) ([]Coupon, error)
}
