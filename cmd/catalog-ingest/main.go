// Command catalog-ingest loads supplier catalog dumps into the items table.
//
// Dumps are gzip-compressed TSV files (barcode, name, price, image URL), one
// per supplier, and may repeat barcodes both within and across files. The
// first occurrence of a barcode wins; later ones are skipped via a bloom
// filter so the whole run stays in constant memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minBarcodeLen = 8
	maxBarcodeLen = 14
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog *.gz dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent upsert workers")
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

	if err := run(ctx, dataDir, databaseURL, workers); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, workers int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz dumps found in %s", dataDir)
	}
	// Deterministic supplier precedence: lexicographic file order.
	sort.Strings(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewItemRepository(pool)
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	g, ctx := errgroup.WithContext(ctx)
	items := make(chan *catalog.Item, workers*4)

	for range workers {
		g.Go(func() error {
			for it := range items {
				if err := repo.Upsert(ctx, it); err != nil {
					return errors.Wrapf(err, "upsert item %s", it.Barcode)
				}
			}
			return nil
		})
	}

	// Single reader goroutine owns the bloom filter, so membership checks
	// need no locking.
	g.Go(func() error {
		defer close(items)
		for _, f := range files {
			if err := streamDump(ctx, f, seen, items); err != nil {
				return errors.Wrapf(err, "ingest %s", f)
			}
		}
		return nil
	})

	return g.Wait()
}

// streamDump parses one dump file and sends previously unseen items.
func streamDump(ctx context.Context, path string, seen *bloom.BloomFilter, out chan<- *catalog.Item) error {
	slog.Info("ingesting dump", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var lines, kept, malformed uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		lines++
		if lines%progressEvery == 0 {
			slog.Info("ingest progress",
				slog.String("path", path),
				slog.Uint64("lines", lines),
				slog.Uint64("kept", kept),
			)
		}

		it, ok := parseLine(scanner.Text())
		if !ok {
			malformed++
			continue
		}
		if seen.TestString(it.Barcode) {
			continue
		}
		seen.AddString(it.Barcode)

		select {
		case out <- it:
		case <-ctx.Done():
			return ctx.Err()
		}
		kept++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}

	slog.Info("dump complete",
		slog.String("path", path),
		slog.Uint64("lines", lines),
		slog.Uint64("kept", kept),
		slog.Uint64("malformed", malformed),
	)
	return nil
}

// parseLine decodes one TSV record: barcode, name, price, optional image URL.
func parseLine(line string) (*catalog.Item, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return nil, false
	}

	barcode := strings.TrimSpace(fields[0])
	if len(barcode) < minBarcodeLen || len(barcode) > maxBarcodeLen {
		return nil, false
	}
	name := strings.TrimSpace(fields[1])
	if name == "" {
		return nil, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil || price.IsNegative() {
		return nil, false
	}

	it := &catalog.Item{
		Barcode: barcode,
		Name:    name,
		Price:   price,
	}
	if len(fields) > 3 {
		it.ImageURL = strings.TrimSpace(fields[3])
	}
	return it, true
}
