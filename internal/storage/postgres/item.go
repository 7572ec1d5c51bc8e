package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

const (
	getItemSQL = `SELECT barcode, name, price, image_url, coupon_id
	FROM items WHERE barcode = $1`

	upsertItemSQL = `INSERT INTO items (barcode, name, price, image_url, coupon_id)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (barcode) DO UPDATE
	SET name = EXCLUDED.name, price = EXCLUDED.price,
		image_url = EXCLUDED.image_url, coupon_id = EXCLUDED.coupon_id`
)

var _ catalog.ItemRepository = (*ItemRepository)(nil)

// ItemRepository implements catalog.ItemRepository backed by PostgreSQL.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository returns an ItemRepository that uses the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// GetByBarcode looks up one item, returning a typed not-found error when the
// barcode has no catalog entry.
func (r *ItemRepository) GetByBarcode(ctx context.Context, barcode string) (*catalog.Item, error) {
	var it catalog.Item
	err := r.pool.QueryRow(ctx, getItemSQL, barcode).Scan(
		&it.Barcode, &it.Name, &it.Price, &it.ImageURL, &it.CouponID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ItemNotFoundError{Barcode: barcode}
		}
		return nil, errors.Wrapf(err, "get item %q", barcode)
	}
	return &it, nil
}

// Upsert inserts or refreshes a catalog entry. Used by the seed and ingest
// commands.
func (r *ItemRepository) Upsert(ctx context.Context, it *catalog.Item) error {
	_, err := r.pool.Exec(ctx, upsertItemSQL,
		it.Barcode, it.Name, it.Price, it.ImageURL, it.CouponID,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert item %q", it.Barcode)
	}
	return nil
}
