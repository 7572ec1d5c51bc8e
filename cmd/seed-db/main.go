// Command seed-db loads the item catalog and demo coupons into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/storage/postgres"
)

type itemJSON struct {
	Barcode  string          `json:"barcode"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	CouponID string          `json:"couponId"`
}

func main() {
	var (
		databaseURL string
		itemsFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&itemsFile, "items-file", "db/seed/items.json", "path to items JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, itemsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, itemsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedItems(ctx, postgres.NewItemRepository(pool), itemsFile); err != nil {
		return errors.Wrap(err, "seed items")
	}

	return nil
}

func seedItems(ctx context.Context, repo *postgres.ItemRepository, itemsFile string) error {
	slog.Info("reading items file", slog.String("path", itemsFile))

	data, err := os.ReadFile(itemsFile)
	if err != nil {
		return errors.Wrap(err, "read items file")
	}

	var items []itemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse items JSON")
	}

	slog.Info("upserting items", slog.Int("count", len(items)))

	for _, it := range items {
		if err := repo.Upsert(ctx, &catalog.Item{
			Barcode:  it.Barcode,
			Name:     it.Name,
			Price:    it.Price,
			ImageURL: it.ImageURL,
			CouponID: it.CouponID,
		}); err != nil {
			return errors.Wrapf(err, "upsert item %s", it.Barcode)
		}

		slog.Info("upserted item", slog.String("barcode", it.Barcode), slog.String("name", it.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding demo coupons")

	coupons := []catalog.Coupon{
		{
			ID:           "timesale-10",
			DiscountWay:  catalog.DiscountPercentage,
			DiscountRate: decimal.NewFromInt(10),
			Description:  "Time sale: 10% off",
		},
		{
			ID:           "drink-half",
			DiscountWay:  catalog.DiscountPercentage,
			DiscountRate: decimal.NewFromInt(50),
			Description:  "Half price drinks",
		},
		{
			ID:           "yen100-off",
			DiscountWay:  catalog.DiscountFixed,
			DiscountRate: decimal.NewFromInt(100),
			Description:  "100 yen off",
		},
	}

	for i := range coupons {
		if err := repo.Upsert(ctx, &coupons[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", coupons[i].ID)
		}

		slog.Info("upserted coupon", slog.String("id", coupons[i].ID), slog.String("description", coupons[i].Description))
	}

	return nil
}
