package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

// Transaction reference sentinels. Any other value is a gateway-issued
// transaction id proving a confirmed charge.
const (
	// TransactionUnpaid marks an order that has not been settled yet.
	TransactionUnpaid = "0"
	// TransactionCash marks a zero-amount order settled without the gateway.
	TransactionCash = "cash"
)

// Currency is the fixed settlement currency. Amounts are integer yen.
const Currency = "JPY"

// Store outcome sentinels.
var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned by InsertIfAbsent when the order id is taken.
	ErrConflict = errors.New("order id already exists")
	// ErrPreconditionFailed is returned by the conditional writes when the
	// order is missing or no longer pending.
	ErrPreconditionFailed = errors.New("order is missing or already paid")
)

// Service-level sentinels.
var (
	// ErrAlreadyPaid is returned when an update or confirmation targets an
	// order that has already been settled.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrIDCollision is returned when the retried insert collides again.
	// The retry budget is exactly one; this is fatal.
	ErrIDCollision = errors.New("order id collision persisted after retry")
	// ErrEmptyItems is returned when a request carries no line items.
	ErrEmptyItems = errors.New("items required")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	Barcode string
}

func (e *InvalidQuantityError) Error() string {
	return "quantity must be greater than 0 for item " + e.Barcode
}

// Discount is a coupon's rule frozen at resolution time. Lines and orders
// keep the copied mode and value so later rule edits never reprice them.
type Discount struct {
	Way  catalog.DiscountWay `json:"way"`
	Rate decimal.Decimal     `json:"rate"`
}

// Line is one resolved catalog item within an order. Name and unit price are
// copied from the catalog when the order is built.
type Line struct {
	Barcode   string          `json:"barcode"`
	ItemName  string          `json:"itemName"`
	UnitPrice decimal.Decimal `json:"itemPrice"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"itemUrl"`
	CouponID  string          `json:"couponId,omitempty"`
	Discount  *Discount       `json:"discount,omitempty"`
}

// Order is a priced, persisted purchase request tied to one user.
type Order struct {
	ID            string
	UserID        string
	Lines         []Line
	Discount      *Discount
	CouponID      string
	Amount        decimal.Decimal
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ExpiresAt     time.Time
}

// Paid reports whether the order has reached its terminal state.
func (o *Order) Paid() bool {
	return o.TransactionID != TransactionUnpaid
}

// Store defines persistence operations for orders. Conditional writes carry
// the concurrency contract: InsertIfAbsent is an atomic test-and-set on the
// order id, the IfPending variants reject writes once the order is settled.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	// InsertIfAbsent persists a new order, returning ErrConflict when the id
	// is already taken.
	InsertIfAbsent(ctx context.Context, o *Order) error
	// UpdateIfPending replaces lines, discount, amount and settlement fields,
	// returning ErrPreconditionFailed when the order is missing or paid.
	// The expiration instant is never touched: an order's lifetime is
	// anchored at creation.
	UpdateIfPending(ctx context.Context, o *Order) error
	// SettleIfPending records the gateway transaction reference, returning
	// ErrPreconditionFailed when the order is missing or already paid.
	SettleIfPending(ctx context.Context, id, transactionID string, paidAt, expiresAt time.Time) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	GetByUserAndOrder(ctx context.Context, userID, orderID string) (*Order, error)
}
