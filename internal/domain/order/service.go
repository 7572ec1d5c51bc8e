package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

// ReserveRequest carries what the gateway needs to open a payment session.
type ReserveRequest struct {
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	ConfirmURL string
}

// Gateway abstracts the external payment provider.
type Gateway interface {
	// Reserve opens a payment session and returns the provider's raw
	// response payload (payment URL, transaction id).
	Reserve(ctx context.Context, req ReserveRequest) ([]byte, error)
	// Confirm finalizes a charge and returns the provider's raw receipt.
	Confirm(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) ([]byte, error)
}

// Notifier delivers a receipt to the purchasing user once an order is paid.
// Delivery is fire-and-forget: implementations log failures, callers never
// see them.
type Notifier interface {
	SendReceipt(ctx context.Context, o *Order, paidAt time.Time)
}

// LineRequest is one scanned item in a create or update request.
type LineRequest struct {
	Barcode  string
	Quantity int
	CouponID string
}

// PutRequest holds the input for creating or updating an order.
type PutRequest struct {
	UserID   string
	Items    []LineRequest
	CouponID string
}

// Service orchestrates order creation, update and confirmation against the
// store and payment gateway, enforcing the Pending -> Paid state machine.
type Service struct {
	items   catalog.ItemRepository
	coupons catalog.CouponRepository
	orders  Store
	gateway Gateway
	notify  Notifier

	loc   *time.Location
	now   func() time.Time
	newID func() string
}

// NewService creates an order Service. loc is the local calendar used to
// compute order expiration (next midnight after creation).
func NewService(
	items catalog.ItemRepository,
	coupons catalog.CouponRepository,
	orders Store,
	gateway Gateway,
	notify Notifier,
	loc *time.Location,
) *Service {
	return &Service{
		items:   items,
		coupons: coupons,
		orders:  orders,
		gateway: gateway,
		notify:  notify,
		loc:     loc,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Get loads a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// Create prices and persists a new order under a freshly generated id.
// A zero-amount order is settled immediately without the gateway, a receipt
// is dispatched, and the returned id is empty to signal the caller that no
// payment step remains. An id collision is retried exactly once with a new
// id; a second collision is the fatal ErrIDCollision.
func (s *Service) Create(ctx context.Context, req PutRequest) (string, error) {
	lines, disc, err := s.resolve(ctx, req)
	if err != nil {
		return "", err
	}

	now := s.now().In(s.loc)
	amount := ComputeAmount(lines, disc)

	o := &Order{
		ID:            s.newID(),
		UserID:        req.UserID,
		Lines:         lines,
		Discount:      disc,
		CouponID:      req.CouponID,
		Amount:        amount,
		TransactionID: TransactionUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     nextMidnight(now, s.loc),
	}
	if amount.IsZero() {
		o.TransactionID = TransactionCash
		o.PaidAt = &now
	}

	if err := s.orders.InsertIfAbsent(ctx, o); err != nil {
		if !errors.Is(err, ErrConflict) {
			return "", errors.Wrap(err, "insert order")
		}
		// Collision on a fresh UUID: regenerate and retry once.
		o.ID = s.newID()
		if err := s.orders.InsertIfAbsent(ctx, o); err != nil {
			if errors.Is(err, ErrConflict) {
				return "", errors.Wrapf(ErrIDCollision, "order %s", o.ID)
			}
			return "", errors.Wrap(err, "insert order after collision")
		}
	}

	if amount.IsZero() {
		s.notify.SendReceipt(ctx, o, now)
		return "", nil
	}
	return o.ID, nil
}

// Update reprices an existing pending order in place. The conditional write
// is the only guard: once the order is paid (or missing) the store rejects
// the write and ErrAlreadyPaid is returned with nothing mutated. As with
// Create, a recomputed zero amount settles the order on the spot and an
// empty id is returned.
func (s *Service) Update(ctx context.Context, orderID string, req PutRequest) (string, error) {
	lines, disc, err := s.resolve(ctx, req)
	if err != nil {
		return "", err
	}

	now := s.now().In(s.loc)
	amount := ComputeAmount(lines, disc)

	o := &Order{
		ID:            orderID,
		UserID:        req.UserID,
		Lines:         lines,
		Discount:      disc,
		CouponID:      req.CouponID,
		Amount:        amount,
		TransactionID: TransactionUnpaid,
		UpdatedAt:     now,
	}
	if amount.IsZero() {
		o.TransactionID = TransactionCash
		o.PaidAt = &now
	}

	if err := s.orders.UpdateIfPending(ctx, o); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return "", errors.Wrapf(ErrAlreadyPaid, "order %s", orderID)
		}
		return "", errors.Wrap(err, "update order")
	}

	if amount.IsZero() {
		s.notify.SendReceipt(ctx, o, now)
		return "", nil
	}
	return orderID, nil
}

// RequestPayment opens a gateway payment session for a pending order and
// returns the provider's raw reserve payload.
func (s *Service) RequestPayment(ctx context.Context, orderID, confirmURL string) ([]byte, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Paid() {
		return nil, errors.Wrapf(ErrAlreadyPaid, "order %s", orderID)
	}

	resp, err := s.gateway.Reserve(ctx, ReserveRequest{
		OrderID:    o.ID,
		Amount:     o.Amount,
		Currency:   Currency,
		ConfirmURL: confirmURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "reserve payment")
	}
	return resp, nil
}

// Confirm finalizes a charge with the gateway and records the transaction
// reference. The order must still be pending: a settled order is rejected
// before the gateway is called, and the settle write itself re-checks the
// precondition so two racing confirmations cannot both succeed. A gateway
// failure propagates unchanged with no store mutation.
func (s *Service) Confirm(ctx context.Context, orderID, transactionID string) ([]byte, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Paid() {
		return nil, errors.Wrapf(ErrAlreadyPaid, "order %s", orderID)
	}

	receipt, err := s.gateway.Confirm(ctx, transactionID, o.Amount, Currency)
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}

	now := s.now().In(s.loc)
	if err := s.orders.SettleIfPending(ctx, orderID, transactionID, now, nextMidnight(now, s.loc)); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return nil, errors.Wrapf(ErrAlreadyPaid, "order %s", orderID)
		}
		return nil, errors.Wrap(err, "settle order")
	}

	o.TransactionID = transactionID
	o.PaidAt = &now
	s.notify.SendReceipt(ctx, o, now)

	return receipt, nil
}

// History returns the user's orders via the secondary index. When orderID is
// non-empty only that order is returned (zero or one rows).
func (s *Service) History(ctx context.Context, userID, orderID string) ([]Order, error) {
	if orderID != "" {
		o, err := s.orders.GetByUserAndOrder(ctx, userID, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []Order{*o}, nil
	}
	return s.orders.ListByUser(ctx, userID)
}

// resolve turns request lines into priced order lines, freezing catalog
// prices and coupon rules into them, and resolves the order-level coupon.
func (s *Service) resolve(ctx context.Context, req PutRequest) ([]Line, *Discount, error) {
	if len(req.Items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	lines := make([]Line, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{Barcode: it.Barcode}
		}

		item, err := s.items.GetByBarcode(ctx, it.Barcode)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "get item %s", it.Barcode)
		}

		line := Line{
			Barcode:   item.Barcode,
			ItemName:  item.Name,
			UnitPrice: item.Price,
			Quantity:  it.Quantity,
			ImageURL:  item.ImageURL,
			CouponID:  it.CouponID,
		}
		if it.CouponID != "" {
			c, err := s.coupons.GetByID(ctx, it.CouponID)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "get coupon %s", it.CouponID)
			}
			line.Discount = &Discount{Way: c.DiscountWay, Rate: c.DiscountRate}
		}
		lines = append(lines, line)
	}

	var disc *Discount
	if req.CouponID != "" {
		c, err := s.coupons.GetByID(ctx, req.CouponID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "get coupon %s", req.CouponID)
		}
		disc = &Discount{Way: c.DiscountWay, Rate: c.DiscountRate}
	}

	return lines, disc, nil
}

// nextMidnight returns the first local-calendar midnight after t.
func nextMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
