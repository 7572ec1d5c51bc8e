package handler

import (
	"encoding/json"
	"net/http"
)

type paymentRequestRequest struct {
	OrderID string `json:"orderId"`
	IDToken string `json:"idToken"`
}

// RequestPayment opens a gateway payment session for a pending order and
// forwards the provider's reserve payload (payment URL, transaction id).
// The confirm redirect is anchored at the requesting page's origin so the
// gateway returns the shopper to the same deployment that started checkout.
func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "orderId required")
		return
	}
	if _, ok := h.userFromToken(w, r, req.IDToken); !ok {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = h.cfg.ConfirmBaseURL
	}
	raw, err := h.orders.RequestPayment(r.Context(), req.OrderID, origin+h.cfg.ConfirmPath)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeRaw(w, http.StatusOK, raw)
}

type paymentConfirmRequest struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
}

// ConfirmPayment finalizes a charge and forwards the gateway's raw receipt.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || req.TransactionID == "" {
		h.writeError(w, http.StatusBadRequest, "orderId and transactionId required")
		return
	}

	raw, err := h.orders.Confirm(r.Context(), req.OrderID, req.TransactionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeRaw(w, http.StatusOK, raw)
}
