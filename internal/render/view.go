package render

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/cart"
	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/order"
)

// CartView is the data of the cart detail page.
type CartView struct {
	Items              []cart.Item
	Len                int
	Coupon             *coupon.Coupon
	Total              decimal.Decimal
	Discount           decimal.Decimal
	TotalAfterDiscount decimal.Decimal
}

// NewCartView resolves items and totals of c.
func NewCartView(ctx context.Context, c *cart.Cart) (CartView, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return CartView{}, err
	}
	cp, err := c.Coupon(ctx)
	if err != nil {
		return CartView{}, err
	}
	discount, err := c.Discount(ctx)
	if err != nil {
		return CartView{}, err
	}
	after, err := c.TotalPriceAfterDiscount(ctx)
	if err != nil {
		return CartView{}, err
	}
	return CartView{
		Items:              slices.Collect(items),
		Len:                c.Len(),
		Coupon:             cp,
		Total:              c.TotalPrice(),
		Discount:           discount,
		TotalAfterDiscount: after,
	}, nil
}

// FormField is one input of the checkout form.
type FormField struct {
	Name  string
	Label string
	Value string
	Error string
}

// OrderCreateView is the data of the checkout page.
type OrderCreateView struct {
	Cart   CartView
	Fields []FormField
}

// OrderView is the data of the order pages. Names maps product ids to
// display names.
type OrderView struct {
	Order *order.Order
	Names map[string]string
}
