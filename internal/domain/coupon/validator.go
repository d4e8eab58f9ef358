package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a user-entered coupon code into a coupon that may be
// attached to a cart.
type Validator interface {
	Validate(ctx context.Context, code string) (*Coupon, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the code case-insensitively and checks that the coupon
// is active and inside its validity window.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Active {
		return nil, ErrInvalidCoupon
	}
	if !c.ValidAt(v.now()) {
		return nil, ErrCouponExpired
	}

	return c, nil
}
