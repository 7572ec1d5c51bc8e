// Package catalog holds the sellable item and coupon models the register
// resolves barcodes and discount rules against.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is one sellable product, looked up by its barcode.
type Item struct {
	Barcode  string          `json:"barcode"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl,omitempty"`
	// CouponID binds an item-level discount that applies whenever the item
	// is scanned. Empty means no bound coupon.
	CouponID string `json:"couponId,omitempty"`
}

// ItemNotFoundError reports a barcode with no catalog entry.
type ItemNotFoundError struct {
	Barcode string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.Barcode)
}

// ItemRepository provides read access to the item catalog.
type ItemRepository interface {
	// GetByBarcode returns the item or *ItemNotFoundError.
	GetByBarcode(ctx context.Context, barcode string) (*Item, error)
}
