// Command coupon-ingest imports the coupon codes shared by at least two of
// the gzipped code lists in a directory.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/ingest"
	"github.com/xenking/kart-shop/internal/repository"
)

// discounts overrides the default percentage for well known codes.
var discounts = map[string]int{
	"FIFTYOFF": 50,
	"SIXTYOFF": 60,
	"FREEZAAA": 100,
	"GNULINUX": 15,
	"HAPPYHRS": 18,
}

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	discount    int
	validFor    time.Duration
	capacity    uint
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing the gzipped code lists")
	flag.StringVar(&opts.pattern, "pattern", "couponbase*.gz", "glob of code list files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.discount, "discount", 10, "default discount percentage")
	flag.DurationVar(&opts.validFor, "valid-for", 365*24*time.Hour, "validity window starting now")
	flag.UintVar(&opts.capacity, "capacity", 120_000_000, "expected codes per file")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}

	codes, err := ingest.SharedCodes(ctx, files, ingest.Options{
		Capacity:      opts.capacity,
		ProgressEvery: 10_000_000,
		Logger:        lg,
	})
	if err != nil {
		return errors.Wrap(err, "find shared codes")
	}
	lg.Info("Shared codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	if err := repository.RunMigrations(opts.databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := repository.NewCouponRepository(pool)
	from := time.Now().UTC()
	for i, code := range codes {
		discount, ok := discounts[code]
		if !ok {
			discount = opts.discount
		}
		if err := repo.Upsert(ctx, &coupon.Coupon{
			Code:      code,
			ValidFrom: from,
			ValidTo:   from.Add(opts.validFor),
			Discount:  discount,
			Active:    true,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}
		if (i+1)%100 == 0 || i+1 == len(codes) {
			lg.Info("Write progress", zap.Int("written", i+1), zap.Int("total", len(codes)))
		}
	}
	return nil
}
