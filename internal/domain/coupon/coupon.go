package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by lookups when no coupon matches.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
)

var hundred = decimal.NewFromInt(100)

// Coupon is a percentage discount applicable to a cart or order total.
type Coupon struct {
	ID        int64
	Code      string
	ValidFrom time.Time
	ValidTo   time.Time
	// Discount is a whole percentage in the range 0..100.
	Discount int
	Active   bool
}

// Rate returns the discount as a fraction (10 -> 0.1).
func (c *Coupon) Rate() decimal.Decimal {
	return decimal.NewFromInt(int64(c.Discount)).Div(hundred)
}

// ValidAt reports whether the coupon is active and now lies inside
// [ValidFrom, ValidTo].
func (c *Coupon) ValidAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	return !now.Before(c.ValidFrom) && !now.After(c.ValidTo)
}

// Repository provides coupon lookups. Both methods return ErrNotFound when
// no row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}
