package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type itemJSON struct {
	Barcode      string           `json:"barcode"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	ImageURL     string           `json:"imageUrl"`
	CouponID     string           `json:"couponId,omitempty"`
	DiscountWay  string           `json:"discountWay,omitempty"`
	DiscountRate *decimal.Decimal `json:"discountRate,omitempty"`
}

// GetItem returns one scanned item. When the item carries a bound coupon the
// discount rule is resolved and included so the register can show the
// discounted price immediately.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if barcode == "" {
		h.writeError(w, http.StatusBadRequest, "barcode required")
		return
	}

	item, err := h.items.GetByBarcode(r.Context(), barcode)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := itemJSON{
		Barcode:  item.Barcode,
		Name:     item.Name,
		Price:    item.Price,
		ImageURL: item.ImageURL,
		CouponID: item.CouponID,
	}
	if item.CouponID != "" {
		c, err := h.coupons.GetByID(r.Context(), item.CouponID)
		if err == nil && !c.Deleted {
			out.DiscountWay = string(c.DiscountWay)
			out.DiscountRate = &c.DiscountRate
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type couponJSON struct {
	CouponID     string          `json:"couponId"`
	DiscountWay  string          `json:"discountWay"`
	DiscountRate decimal.Decimal `json:"discountRate"`
	Description  string          `json:"description,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
}

// ListCoupons returns the usable (not soft-deleted) coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListActive(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]couponJSON, len(coupons))
	for i, c := range coupons {
		out[i] = couponJSON{
			CouponID:     c.ID,
			DiscountWay:  string(c.DiscountWay),
			DiscountRate: c.DiscountRate,
			Description:  c.Description,
			ImageURL:     c.ImageURL,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}
