package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-shop/internal/domain/coupon"
)

const (
	couponColumns = `id, code, valid_from, valid_to, discount, active`

	getCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (code, valid_from, valid_to, discount, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (UPPER(code)) DO UPDATE SET
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			discount = EXCLUDED.discount,
			active = EXCLUDED.active
		RETURNING id`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByID returns the coupon with the given id regardless of its state.
func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %d: %w", id, err)
	}
	return collectCoupon(rows, fmt.Sprintf("getting coupon %d", id))
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return collectCoupon(rows, fmt.Sprintf("finding coupon by code %q", code))
}

// Upsert stores the coupon keyed by its case-insensitive code and sets the
// generated ID on c.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, upsertCouponSQL,
		c.Code, c.ValidFrom, c.ValidTo, c.Discount, c.Active,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func collectCoupon(rows pgx.Rows, op string) (*coupon.Coupon, error) {
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c        coupon.Coupon
		discount int32
	)
	err := row.Scan(&c.ID, &c.Code, &c.ValidFrom, &c.ValidTo, &discount, &c.Active)
	c.Discount = int(discount)
	return c, err
}
