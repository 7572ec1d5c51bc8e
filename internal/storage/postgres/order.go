package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/domain/order"
)

const orderColumns = `id, user_id, lines, coupon_id, discount_way, discount_rate,
	amount, transaction_id, created_at, updated_at, paid_at, expires_at`

const (
	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING`

	// The transaction_id guard is the pending precondition: once any other
	// value is written the order is settled and the update matches no rows.
	updateOrderSQL = `UPDATE orders
	SET lines = $2, coupon_id = $3, discount_way = $4, discount_rate = $5,
		amount = $6, transaction_id = $7, updated_at = $8, paid_at = $9
	WHERE id = $1 AND transaction_id = $10`

	settleOrderSQL = `UPDATE orders
	SET transaction_id = $2, paid_at = $3, updated_at = $3, expires_at = $4
	WHERE id = $1 AND transaction_id = $5`

	listByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 ORDER BY created_at DESC`

	getByUserAndOrderSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 AND id = $2`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. The conditional
// writes the lifecycle engine relies on are expressed as single statements
// whose row count distinguishes success from a failed precondition.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Get loads one order by id, returning order.ErrNotFound when absent.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, getOrderSQL, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// InsertIfAbsent persists a new order. ON CONFLICT DO NOTHING makes the id
// check and the insert one atomic statement; zero affected rows means the id
// was taken and order.ErrConflict is returned.
func (s *OrderStore) InsertIfAbsent(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}

	way, rate := discountCols(o.Discount)
	tag, err := s.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, linesJSON, nullable(o.CouponID), way, rate,
		o.Amount, o.TransactionID, o.CreatedAt, o.UpdatedAt, o.PaidAt, o.ExpiresAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrConflict
	}
	return nil
}

// UpdateIfPending replaces the priced fields of a still-pending order.
// expires_at is deliberately left alone: the order's lifetime is anchored at
// creation no matter how many times it is edited.
func (s *OrderStore) UpdateIfPending(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}

	way, rate := discountCols(o.Discount)
	tag, err := s.pool.Exec(ctx, updateOrderSQL,
		o.ID, linesJSON, nullable(o.CouponID), way, rate,
		o.Amount, o.TransactionID, o.UpdatedAt, o.PaidAt,
		order.TransactionUnpaid,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrPreconditionFailed
	}
	return nil
}

// SettleIfPending records the gateway transaction reference on a pending
// order and bumps paid_at and expires_at.
func (s *OrderStore) SettleIfPending(ctx context.Context, id, transactionID string, paidAt, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, settleOrderSQL,
		id, transactionID, paidAt, expiresAt, order.TransactionUnpaid,
	)
	if err != nil {
		return errors.Wrapf(err, "settle order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrPreconditionFailed
	}
	return nil
}

// ListByUser returns all orders of a user, latest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for user %q", userID)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// GetByUserAndOrder returns the order only when it belongs to the user.
func (s *OrderStore) GetByUserAndOrder(ctx context.Context, userID, orderID string) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, getByUserAndOrderSQL, userID, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q for user %q", orderID, userID)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		couponID  *string
		way       *string
		rate      *decimal.Decimal
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &couponID, &way, &rate,
		&o.Amount, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.ExpiresAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, errors.Wrap(err, "unmarshal order lines")
	}
	if couponID != nil {
		o.CouponID = *couponID
	}
	if way != nil && rate != nil {
		o.Discount = &order.Discount{Way: catalog.DiscountWay(*way), Rate: *rate}
	}
	return &o, nil
}

func discountCols(d *order.Discount) (*string, *decimal.Decimal) {
	if d == nil {
		return nil, nil
	}
	way := string(d.Way)
	rate := d.Rate
	return &way, &rate
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
