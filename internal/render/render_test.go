package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-shop/internal/cart"
	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/order"
	"github.com/xenking/kart-shop/internal/domain/product"
)

type memSession map[string]any

func (s memSession) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

func (s memSession) Set(key string, value any) { s[key] = value }
func (s memSession) Delete(key string)         { delete(s, key) }
func (s memSession) MarkModified()             {}

type catalog map[string]product.Product

func (c catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type coupons struct{ c *coupon.Coupon }

func (c coupons) GetByID(context.Context, int64) (*coupon.Coupon, error) {
	if c.c == nil {
		return nil, coupon.ErrNotFound
	}
	return c.c, nil
}

func testOrder() *order.Order {
	couponID := int64(3)
	return &order.Order{
		ID:         7,
		FirstName:  "Ada",
		LastName:   "O'Brien",
		Email:      "ada@example.com",
		Address:    "1 Road <b>",
		PostalCode: "1000",
		City:       "Sofia",
		Created:    time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC),
		CouponID:   &couponID,
		Discount:   10,
		Items: []order.OrderItem{
			{ProductID: "1", Price: decimal.RequireFromString("10.00"), Quantity: 2},
			{ProductID: "9", Price: decimal.RequireFromString("5.50"), Quantity: 1},
		},
	}
}

func TestRenderer_CartDetail(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	green := product.Product{ID: "1", Name: "Green <tea>", Price: decimal.RequireFromString("10.00")}
	c := cart.New(memSession{}, catalog{"1": green},
		coupons{&coupon.Coupon{ID: 1, Code: "TEN", Discount: 10}}, cart.Config{})
	c.Add(green, 3, false)
	c.SetCoupon(1)

	view, err := NewCartView(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len)

	var buf bytes.Buffer
	require.NoError(t, r.HTML(&buf, CartDetail, view))
	out := buf.String()

	assert.Contains(t, out, "Green &lt;tea&gt;")
	assert.Contains(t, out, "$30.00")
	assert.Contains(t, out, "- $3.00")
	assert.Contains(t, out, "$27.00")
	assert.Contains(t, out, `action="/cart/remove/1"`)
}

func TestRenderer_EmptyCart(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	view, err := NewCartView(context.Background(), cart.New(memSession{}, catalog{}, coupons{}, cart.Config{}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.HTML(&buf, CartDetail, view))
	assert.Contains(t, buf.String(), "Your cart is empty.")
}

func TestRenderer_OrderCreateShowsErrors(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.HTML(&buf, OrderCreate, OrderCreateView{
		Fields: []FormField{
			{Name: "email", Label: "E-mail", Value: "nope", Error: "Enter a valid email address."},
		},
	}))
	assert.Contains(t, buf.String(), `value="nope"`)
	assert.Contains(t, buf.String(), "Enter a valid email address.")
}

func TestRenderer_AdminOrderDetail(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.HTML(&buf, AdminOrderDetail, OrderView{
		Order: testOrder(),
		Names: map[string]string{"1": "Sencha"},
	}))
	out := buf.String()

	assert.Contains(t, out, "Order 7")
	assert.Contains(t, out, "Sencha")
	assert.Contains(t, out, "Product 9")
	assert.Contains(t, out, "Discount (10%)")
	assert.Contains(t, out, "$22.95")
	assert.Contains(t, out, "Pending payment")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.Error(t, r.HTML(&buf, "missing.html", nil))
	assert.Zero(t, buf.Len())
}

func TestRenderer_OrderPDF(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	markup, err := r.Markup(OrderPDF, OrderView{Order: testOrder(), Names: map[string]string{"1": "Sencha"}})
	require.NoError(t, err)
	assert.Contains(t, markup, "Invoice no. 7")
	assert.Contains(t, markup, "O'Brien")
	assert.Contains(t, markup, "1 Road b")
	assert.Contains(t, markup, "2 x Sencha at $10.00 = $20.00")
	assert.Contains(t, markup, "Total: $22.95")

	var buf bytes.Buffer
	require.NoError(t, r.PDF(&buf, markup))
	assert.True(t, strings.HasPrefix(buf.String(), "%PDF-"))
}
