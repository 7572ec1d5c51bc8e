package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/order"
)

type putOrderRequest struct {
	OrderID  string             `json:"orderId,omitempty"`
	CouponID string             `json:"couponId,omitempty"`
	Items    []orderItemRequest `json:"items"`
	IDToken  string             `json:"idToken"`
}

type orderItemRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
	CouponID string `json:"couponId,omitempty"`
}

type putOrderResponse struct {
	// OrderID is null for a zero-amount order, signalling the client that
	// no payment step remains.
	OrderID *string `json:"orderId"`
}

// PutOrder creates or updates an order. The dispatch rule follows the
// register flow: a supplied order id that resolves to an existing record
// means update, anything else means create.
func (h *Handler) PutOrder(w http.ResponseWriter, r *http.Request) {
	var req putOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := h.userFromToken(w, r, req.IDToken)
	if !ok {
		return
	}
	if msg, ok := validatePutOrder(req); !ok {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	put := order.PutRequest{
		UserID:   userID,
		CouponID: req.CouponID,
		Items:    make([]order.LineRequest, len(req.Items)),
	}
	for i, it := range req.Items {
		put.Items[i] = order.LineRequest{
			Barcode:  it.Barcode,
			Quantity: it.Quantity,
			CouponID: it.CouponID,
		}
	}

	ctx := r.Context()
	var (
		orderID string
		err     error
	)
	if req.OrderID != "" {
		_, getErr := h.orders.Get(ctx, req.OrderID)
		switch {
		case getErr == nil:
			orderID, err = h.orders.Update(ctx, req.OrderID, put)
		case errors.Is(getErr, order.ErrNotFound):
			orderID, err = h.orders.Create(ctx, put)
		default:
			h.writeDomainError(w, getErr)
			return
		}
	} else {
		orderID, err = h.orders.Create(ctx, put)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var resp putOrderResponse
	if orderID != "" {
		resp.OrderID = &orderID
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func validatePutOrder(req putOrderRequest) (string, bool) {
	if len(req.Items) == 0 {
		return "items required", false
	}
	for _, it := range req.Items {
		if it.Barcode == "" {
			return "barcode required", false
		}
		if it.Quantity <= 0 {
			return "quantity must be greater than 0", false
		}
	}
	return "", true
}

type orderLineJSON struct {
	Barcode  string          `json:"barcode"`
	ItemName string          `json:"itemName"`
	Price    decimal.Decimal `json:"itemPrice"`
	Quantity int             `json:"quantity"`
	ImageURL string          `json:"itemUrl,omitempty"`
	CouponID string          `json:"couponId,omitempty"`
}

type orderJSON struct {
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	Paid          bool            `json:"paid"`
	Items         []orderLineJSON `json:"item"`
	OrderedAt     time.Time       `json:"orderDateTime"`
	PaidAt        *time.Time      `json:"paidDateTime,omitempty"`
}

// GetOrders returns the caller's purchase history, optionally narrowed to a
// single order id.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userFromToken(w, r, r.URL.Query().Get("idToken"))
	if !ok {
		return
	}

	orders, err := h.orders.History(r.Context(), userID, r.URL.Query().Get("orderId"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = toOrderJSON(o)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func toOrderJSON(o order.Order) orderJSON {
	items := make([]orderLineJSON, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = orderLineJSON{
			Barcode:  l.Barcode,
			ItemName: l.ItemName,
			Price:    l.UnitPrice,
			Quantity: l.Quantity,
			ImageURL: l.ImageURL,
			CouponID: l.CouponID,
		}
	}
	return orderJSON{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Amount:        o.Amount,
		TransactionID: o.TransactionID,
		Paid:          o.Paid(),
		Items:         items,
		OrderedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
	}
}
