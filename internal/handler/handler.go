// Package handler is the HTTP boundary: request decoding, one-shot
// validation, identity resolution, and mapping of domain errors to statuses.
// Business logic lives in the order service.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/domain/order"
	"github.com/kioskpay/smart-checkout/internal/identity"
	"github.com/kioskpay/smart-checkout/internal/payment"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ConfirmPath is appended to the requesting page's origin to build the
	// gateway redirect URL after payment approval.
	ConfirmPath string
	// ConfirmBaseURL is the origin used when the request carries no Origin
	// header. The gateway rejects a relative redirect URL.
	ConfirmBaseURL string
}

// Handler serves the register API.
type Handler struct {
	cfg      Config
	items    catalog.ItemRepository
	coupons  catalog.CouponRepository
	orders   *order.Service
	identity identity.Verifier
	lg       *zap.Logger
}

// New constructs a Handler with the required dependencies.
func New(
	cfg Config,
	items catalog.ItemRepository,
	coupons catalog.CouponRepository,
	orders *order.Service,
	verifier identity.Verifier,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		items:    items,
		coupons:  coupons,
		orders:   orders,
		identity: verifier,
		lg:       lg,
	}
}

// Routes mounts all API endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/items/{barcode}", h.GetItem)
	r.Get("/coupons", h.ListCoupons)
	r.Put("/orders", h.PutOrder)
	r.Get("/orders", h.GetOrders)
	r.Post("/payments/request", h.RequestPayment)
	r.Post("/payments/confirm", h.ConfirmPayment)
	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.lg.Error("encode response", zap.Error(err))
	}
}

// writeRaw forwards a collaborator's raw JSON payload unchanged.
func (h *Handler) writeRaw(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		h.lg.Error("write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps a domain error to an HTTP response.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		itemNF   *catalog.ItemNotFoundError
		couponNF *catalog.CouponNotFoundError
		badQty   *order.InvalidQuantityError
		gwErr    *payment.GatewayError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badQty):
		h.writeError(w, http.StatusUnprocessableEntity, badQty.Error())
	case errors.As(err, &itemNF):
		h.writeError(w, http.StatusUnprocessableEntity, itemNF.Error())
	case errors.As(err, &couponNF):
		h.writeError(w, http.StatusUnprocessableEntity, couponNF.Error())
	case errors.Is(err, order.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrAlreadyPaid):
		h.writeError(w, http.StatusConflict, "order already settled")
	case errors.As(err, &gwErr):
		h.writeError(w, http.StatusBadGateway, gwErr.Error())
	case errors.Is(err, identity.ErrTokenExpired):
		h.writeError(w, http.StatusForbidden, "id token expired")
	case errors.Is(err, identity.ErrInvalidToken):
		h.writeError(w, http.StatusUnauthorized, "invalid id token")
	default:
		h.lg.Error("internal error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userFromToken resolves the caller's user id from the supplied id token.
func (h *Handler) userFromToken(w http.ResponseWriter, r *http.Request, idToken string) (string, bool) {
	if idToken == "" {
		h.writeError(w, http.StatusBadRequest, "idToken required")
		return "", false
	}
	userID, err := h.identity.VerifyIDToken(r.Context(), idToken)
	if err != nil {
		h.writeDomainError(w, err)
		return "", false
	}
	return userID, true
}
