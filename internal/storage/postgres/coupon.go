package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

const (
	getCouponSQL = `SELECT id, discount_way, discount_rate, description, image_url, deleted
	FROM coupons WHERE id = $1`

	listActiveCouponsSQL = `SELECT id, discount_way, discount_rate, description, image_url, deleted
	FROM coupons WHERE NOT deleted ORDER BY id`

	upsertCouponSQL = `INSERT INTO coupons (id, discount_way, discount_rate, description, image_url, deleted)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE
	SET discount_way = EXCLUDED.discount_way, discount_rate = EXCLUDED.discount_rate,
		description = EXCLUDED.description, image_url = EXCLUDED.image_url,
		deleted = EXCLUDED.deleted`
)

var _ catalog.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements catalog.CouponRepository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*catalog.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, getCouponSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.CouponNotFoundError{CouponID: id}
		}
		return nil, errors.Wrapf(err, "get coupon %q", id)
	}
	return c, nil
}

// ListActive returns coupons that have not been soft-deleted.
func (r *CouponRepository) ListActive(ctx context.Context) ([]catalog.Coupon, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	defer rows.Close()

	var out []catalog.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan coupon")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Upsert inserts or refreshes a coupon rule. Used by the seed command.
func (r *CouponRepository) Upsert(ctx context.Context, c *catalog.Coupon) error {
	if !c.DiscountWay.Valid() {
		return errors.Errorf("coupon %q: unknown discount way %q", c.ID, c.DiscountWay)
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.ID, string(c.DiscountWay), c.DiscountRate, c.Description, c.ImageURL, c.Deleted,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.ID)
	}
	return nil
}

func scanCoupon(row pgx.Row) (*catalog.Coupon, error) {
	var (
		c   catalog.Coupon
		way string
	)
	if err := row.Scan(&c.ID, &way, &c.DiscountRate, &c.Description, &c.ImageURL, &c.Deleted); err != nil {
		return nil, err
	}
	c.DiscountWay = catalog.DiscountWay(way)
	return &c, nil
}
