// Command seed-db loads the product catalog, a few coupons and a staff API
// key into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/auth"
	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/repository"
)

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Available *bool           `json:"available"`
	Image     struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

func (p productJSON) product() product.Product {
	return product.Product{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Available: p.Available == nil || *p.Available,
		Image: product.Image{
			Thumbnail: p.Image.Thumbnail,
			Mobile:    p.Image.Mobile,
			Tablet:    p.Image.Tablet,
			Desktop:   p.Image.Desktop,
		},
	}
}

var seedCoupons = []struct {
	code     string
	discount int
}{
	{"SUMMER10", 10},
	{"HAPPYHOURS", 18},
	{"HALFOFF", 50},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or KART_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile, apiKey, pepper string) error {
	lg.Info("Running migrations")
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	productRepo := repository.NewProductRepository(pool)
	for _, p := range products {
		if err := productRepo.Upsert(ctx, p.product()); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}

	couponRepo := repository.NewCouponRepository(pool)
	now := time.Now().UTC()
	for _, c := range seedCoupons {
		if err := couponRepo.Upsert(ctx, &coupon.Coupon{
			Code:      c.code,
			ValidFrom: now,
			ValidTo:   now.AddDate(1, 0, 0),
			Discount:  c.discount,
			Active:    true,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.code), zap.Int("discount", c.discount))
	}

	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "staff",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Staff key",
		Scopes:  []string{auth.ScopeStaff},
	}); err != nil {
		return errors.Wrap(err, "upsert staff API key")
	}
	lg.Info("Upserted API key", zap.String("id", "staff"))
	return nil
}
