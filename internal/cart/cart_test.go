package cart

import (
	"context"
	"slices"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/product"
)

type memSession struct {
	values   map[string]any
	modified int
}

func newMemSession() *memSession {
	return &memSession{values: map[string]any{}}
}

func (s *memSession) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *memSession) Set(key string, value any) { s.values[key] = value }
func (s *memSession) Delete(key string)         { delete(s.values, key) }
func (s *memSession) MarkModified()             { s.modified++ }

type mockProducts struct {
	byID  map[string]product.Product
	err   error
	calls int
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCoupons struct {
	coupon *coupon.Coupon
	err    error
	calls  int
}

func (m *mockCoupons) GetByID(_ context.Context, _ int64) (*coupon.Coupon, error) {
	m.calls++
	return m.coupon, m.err
}

func newProduct(id, price string) product.Product {
	return product.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
	}
}

func newProducts(ps ...product.Product) *mockProducts {
	m := &mockProducts{byID: map[string]product.Product{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func newCart(t *testing.T, s *memSession, products *mockProducts, coupons *mockCoupons) *Cart {
	t.Helper()
	if products == nil {
		products = newProducts()
	}
	if coupons == nil {
		coupons = &mockCoupons{err: coupon.ErrNotFound}
	}
	return New(s, products, coupons, Config{})
}

func TestCart_AddAccumulates(t *testing.T) {
	p := newProduct("1", "10.00")

	tests := []struct {
		name string
		adds []int
		want int
	}{
		{name: "single", adds: []int{3}, want: 3},
		{name: "three then five", adds: []int{3, 5}, want: 8},
		{name: "many", adds: []int{1, 1, 2, 3, 5, 8}, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCart(t, newMemSession(), nil, nil)
			for _, q := range tt.adds {
				c.Add(p, q, false)
			}
			line, ok := c.Line("1")
			require.True(t, ok)
			assert.Equal(t, tt.want, line.Quantity)
		})
	}
}

func TestCart_AddOverride(t *testing.T) {
	p := newProduct("1", "10.00")
	c := newCart(t, newMemSession(), nil, nil)

	c.Add(p, 3, false)
	c.Add(p, 5, true)

	line, ok := c.Line("1")
	require.True(t, ok)
	assert.Equal(t, 5, line.Quantity)
}

func TestCart_AddSnapshotsPrice(t *testing.T) {
	c := newCart(t, newMemSession(), nil, nil)

	c.Add(newProduct("1", "10.00"), 1, false)
	// Catalog price changed between requests.
	c.Add(newProduct("1", "12.50"), 1, false)

	line, _ := c.Line("1")
	assert.Equal(t, "10", line.Price)
	assert.True(t, decimal.RequireFromString("10.00").Equal(line.UnitPrice()))
	assert.Equal(t, 2, line.Quantity)
}

func TestLine_UnitPrice(t *testing.T) {
	for _, tt := range []struct {
		price string
		want  string
	}{
		{price: "10.5", want: "10.5"},
		{price: "0.01", want: "0.01"},
		{price: "", want: "0"},
		{price: "ten", want: "0"},
	} {
		t.Run(tt.price, func(t *testing.T) {
			got := Line{Quantity: 1, Price: tt.price}.UnitPrice()
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCart_AddMarksModified(t *testing.T) {
	s := newMemSession()
	c := newCart(t, s, nil, nil)

	c.Add(newProduct("1", "1.00"), 1, false)

	assert.Equal(t, 1, s.modified)
	stored, ok := s.Get(DefaultSessionKey)
	require.True(t, ok)
	assert.Contains(t, stored.(Lines), "1")
}

func TestCart_AddDoesNotValidateQuantity(t *testing.T) {
	c := newCart(t, newMemSession(), nil, nil)
	c.Add(newProduct("1", "1.00"), -2, false)

	line, ok := c.Line("1")
	require.True(t, ok)
	assert.Equal(t, -2, line.Quantity)
}

func TestCart_Remove(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		s := newMemSession()
		c := newCart(t, s, nil, nil)
		c.Add(newProduct("1", "1.00"), 1, false)
		before := s.modified

		c.Remove("1")

		_, ok := c.Line("1")
		assert.False(t, ok)
		assert.Equal(t, before+1, s.modified)
	})
	t.Run("absent is a no-op", func(t *testing.T) {
		s := newMemSession()
		c := newCart(t, s, nil, nil)
		c.Add(newProduct("1", "1.00"), 1, false)
		before := s.modified

		c.Remove("404")

		assert.Equal(t, before, s.modified)
		assert.Equal(t, 1, c.Len())
	})
}

func TestCart_Len(t *testing.T) {
	c := newCart(t, newMemSession(), nil, nil)
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.IsEmpty())

	c.Add(newProduct("1", "1.00"), 2, false)
	c.Add(newProduct("2", "1.00"), 3, false)

	assert.Equal(t, 5, c.Len())
	assert.False(t, c.IsEmpty())
}

func TestCart_TotalPrice(t *testing.T) {
	c := newCart(t, newMemSession(), nil, nil)
	c.Add(newProduct("1", "10.00"), 2, false)
	c.Add(newProduct("2", "5.00"), 1, false)

	got := c.TotalPrice()
	assert.True(t, decimal.RequireFromString("25.00").Equal(got), "got %s", got)
}

func TestCart_TotalPriceIsExact(t *testing.T) {
	c := newCart(t, newMemSession(), nil, nil)
	for _, id := range []string{"a", "b", "c"} {
		c.Add(newProduct(id, "0.10"), 1, false)
	}

	assert.Equal(t, "0.3", c.TotalPrice().String())
}

func TestCart_Items(t *testing.T) {
	products := newProducts(
		newProduct("1", "10.00"),
		newProduct("2", "5.00"),
	)
	c := newCart(t, newMemSession(), products, nil)
	c.Add(newProduct("2", "5.00"), 1, false)
	c.Add(newProduct("1", "10.00"), 2, false)

	seq, err := c.Items(context.Background())
	require.NoError(t, err)
	items := slices.Collect(seq)

	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ProductID)
	assert.Equal(t, "2", items[1].ProductID)
	require.NotNil(t, items[0].Product)
	assert.Equal(t, "Product 1", items[0].Product.Name)
	assert.True(t, decimal.RequireFromString("20.00").Equal(items[0].TotalPrice))
	assert.Equal(t, 1, products.calls, "lookup must be batched")

	// Same sequence ranges again without another lookup.
	assert.Len(t, slices.Collect(seq), 2)
	assert.Equal(t, 1, products.calls)
}

func TestCart_ItemsEmpty(t *testing.T) {
	products := newProducts()
	c := newCart(t, newMemSession(), products, nil)

	seq, err := c.Items(context.Background())
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))
	assert.Equal(t, 0, products.calls)
	assert.Equal(t, 0, c.Len())
}

func TestCart_ItemsMissingProduct(t *testing.T) {
	products := newProducts(newProduct("1", "10.00"))
	c := newCart(t, newMemSession(), products, nil)
	c.Add(newProduct("1", "10.00"), 1, false)
	c.Add(newProduct("gone", "3.00"), 2, false)

	seq, err := c.Items(context.Background())
	require.NoError(t, err)
	items := slices.Collect(seq)

	require.Len(t, items, 2)
	missing := items[1]
	assert.Equal(t, "gone", missing.ProductID)
	assert.Nil(t, missing.Product)
	assert.Equal(t, 2, missing.Quantity)
	assert.True(t, decimal.RequireFromString("6.00").Equal(missing.TotalPrice))
}

func TestCart_ItemsLogsOnlyMissingIDs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	products := newProducts(newProduct("1", "10.00"), newProduct("3", "1.00"))
	c := newCart(t, newMemSession(), products, nil)
	for _, id := range []string{"1", "2", "3", "4"} {
		c.Add(newProduct(id, "1.00"), 1, false)
	}

	_, err := c.Items(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("Cart references unknown products").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"2", "4"}, entries[0].ContextMap()["product_ids"])
}

func TestCart_ItemsLookupError(t *testing.T) {
	products := &mockProducts{err: errors.New("db down")}
	c := newCart(t, newMemSession(), products, nil)
	c.Add(newProduct("1", "1.00"), 1, false)

	_, err := c.Items(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get cart products")
}

func TestCart_Discount(t *testing.T) {
	ctx := context.Background()

	t.Run("with coupon", func(t *testing.T) {
		s := newMemSession()
		coupons := &mockCoupons{coupon: &coupon.Coupon{ID: 7, Discount: 10, Active: true}}
		c := newCart(t, s, nil, coupons)
		c.Add(newProduct("1", "50.00"), 2, false)
		c.SetCoupon(7)

		discount, err := c.Discount(ctx)
		require.NoError(t, err)
		total, err := c.TotalPriceAfterDiscount(ctx)
		require.NoError(t, err)

		assert.True(t, decimal.RequireFromString("10.00").Equal(discount), "got %s", discount)
		assert.True(t, decimal.RequireFromString("90.00").Equal(total), "got %s", total)
		assert.Equal(t, 1, coupons.calls, "coupon must be resolved once per cart")
	})

	t.Run("without coupon", func(t *testing.T) {
		coupons := &mockCoupons{}
		c := newCart(t, newMemSession(), nil, coupons)
		c.Add(newProduct("1", "50.00"), 2, false)

		discount, err := c.Discount(ctx)
		require.NoError(t, err)
		total, err := c.TotalPriceAfterDiscount(ctx)
		require.NoError(t, err)

		assert.True(t, discount.IsZero())
		assert.True(t, c.TotalPrice().Equal(total))
		assert.Equal(t, 0, coupons.calls)
	})

	t.Run("coupon not found", func(t *testing.T) {
		s := newMemSession()
		s.Set(DefaultCouponKey, int64(99))
		c := newCart(t, s, nil, &mockCoupons{err: coupon.ErrNotFound})
		c.Add(newProduct("1", "50.00"), 1, false)

		cp, err := c.Coupon(ctx)
		require.NoError(t, err)
		assert.Nil(t, cp)

		discount, err := c.Discount(ctx)
		require.NoError(t, err)
		assert.True(t, discount.IsZero())
	})

	t.Run("lookup failure is returned", func(t *testing.T) {
		s := newMemSession()
		s.Set(DefaultCouponKey, int64(1))
		c := newCart(t, s, nil, &mockCoupons{err: errors.New("db down")})

		_, err := c.Discount(ctx)
		require.Error(t, err)
	})

	t.Run("clamped at zero", func(t *testing.T) {
		s := newMemSession()
		s.Set(DefaultCouponKey, int64(1))
		c := newCart(t, s, nil, &mockCoupons{coupon: &coupon.Coupon{ID: 1, Discount: 150}})
		c.Add(newProduct("1", "10.00"), 1, false)

		total, err := c.TotalPriceAfterDiscount(ctx)
		require.NoError(t, err)
		assert.True(t, total.IsZero(), "got %s", total)
	})
}

func TestCart_Coupon(t *testing.T) {
	s := newMemSession()
	c := newCart(t, s, nil, nil)

	c.SetCoupon(5)
	assert.Equal(t, int64(5), c.CouponID())
	v, ok := s.Get(DefaultCouponKey)
	require.True(t, ok)
	assert.Equal(t, int64(5), v)

	c.ClearCoupon()
	assert.Zero(t, c.CouponID())
	_, ok = s.Get(DefaultCouponKey)
	assert.False(t, ok)
}

func TestCart_Clear(t *testing.T) {
	s := newMemSession()
	c := newCart(t, s, nil, nil)
	c.Add(newProduct("1", "1.00"), 4, false)
	before := s.modified

	c.Clear()

	_, ok := s.Get(DefaultSessionKey)
	assert.False(t, ok)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, before+1, s.modified)

	// A cleared cart can be filled again.
	c.Add(newProduct("2", "1.00"), 1, false)
	_, ok = s.Get(DefaultSessionKey)
	assert.True(t, ok)
}

func TestNew_LoadsExistingLines(t *testing.T) {
	s := newMemSession()
	s.Set("basket", Lines{"1": {Quantity: 3, Price: "2.00"}})

	c := New(s, newProducts(), &mockCoupons{}, Config{SessionKey: "basket"})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 0, s.modified)
}

func TestNew_ReplacesMalformedValue(t *testing.T) {
	s := newMemSession()
	s.Set(DefaultSessionKey, "garbage")

	c := newCart(t, s, nil, nil)

	assert.True(t, c.IsEmpty())
	v, _ := s.Get(DefaultSessionKey)
	assert.IsType(t, Lines{}, v)
}
