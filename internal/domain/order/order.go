package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a placed order with its buyer details and item snapshot.
type Order struct {
	ID         int64
	FirstName  string
	LastName   string
	Email      string
	Address    string
	PostalCode string
	City       string
	Created    time.Time
	Updated    time.Time
	Paid       bool
	// CouponID is nil when no coupon was applied.
	CouponID *int64
	// Discount is the coupon percentage captured at creation.
	Discount int
	Items    []OrderItem
}

// OrderItem is one product line of an order. Price is copied from the cart
// line, never from the current catalog.
type OrderItem struct {
	ID        int64           `json:"id"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Cost returns price × quantity.
func (i OrderItem) Cost() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TotalCostBeforeDiscount sums the cost of all items.
func (o *Order) TotalCostBeforeDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Cost())
	}
	return total
}

// DiscountAmount returns the money taken off by the captured discount.
func (o *Order) DiscountAmount() decimal.Decimal {
	if o.Discount == 0 {
		return decimal.Zero
	}
	return o.TotalCostBeforeDiscount().
		Mul(decimal.NewFromInt(int64(o.Discount))).
		Div(decimal.NewFromInt(100))
}

// TotalCost returns the cost after discount.
func (o *Order) TotalCost() decimal.Decimal {
	return o.TotalCostBeforeDiscount().Sub(o.DiscountAmount())
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and its items atomically and fills in the
	// generated ids and timestamps.
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
}
