// Package cart implements the shopping cart kept in the user's session.
//
// The cart is a thin view over a session value of type Lines. Every mutation
// writes the lines back and marks the session modified so the session store
// persists it at the end of the request. Prices are snapshotted when a
// product is first added and are never re-read from the catalog.
package cart

import (
	"context"
	"encoding/gob"
	"iter"
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/product"
)

// Default session keys.
const (
	DefaultSessionKey = "cart"
	DefaultCouponKey  = "coupon_id"
)

func init() {
	gob.Register(Lines{})
}

// Line is the persisted state of one cart entry. Price is the unit price
// in decimal string form, captured when the line was created.
type Line struct {
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// UnitPrice parses the stored price. An unparsable price counts as zero.
func (l Line) UnitPrice() decimal.Decimal {
	d, err := decimal.NewFromString(l.Price)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Lines maps product ids to their cart line.
type Lines map[string]Line

// Session is the per-user key-value storage the cart lives in.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	// MarkModified tells the store that the session must be written back.
	MarkModified()
}

// ProductLookup resolves product ids in one batch. Unknown ids are omitted
// from the result.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// CouponLookup resolves a coupon by id, returning coupon.ErrNotFound when
// it does not exist.
type CouponLookup interface {
	GetByID(ctx context.Context, id int64) (*coupon.Coupon, error)
}

// Config names the session keys the cart uses.
type Config struct {
	SessionKey string
	CouponKey  string
}

func (c Config) withDefaults() Config {
	if c.SessionKey == "" {
		c.SessionKey = DefaultSessionKey
	}
	if c.CouponKey == "" {
		c.CouponKey = DefaultCouponKey
	}
	return c
}

// Item is a cart line joined with its catalog product.
type Item struct {
	ProductID string
	// Product is nil when the product no longer exists in the catalog.
	Product    *product.Product
	Quantity   int
	Price      decimal.Decimal
	TotalPrice decimal.Decimal
}

// Cart is a request-scoped view of the session cart.
type Cart struct {
	session  Session
	products ProductLookup
	coupons  CouponLookup
	cfg      Config

	lines    Lines
	couponID int64

	coupon         *coupon.Coupon
	couponResolved bool
}

// New loads the cart from the session. A missing or malformed cart value is
// replaced with an empty one.
func New(session Session, products ProductLookup, coupons CouponLookup, cfg Config) *Cart {
	cfg = cfg.withDefaults()
	c := &Cart{
		session:  session,
		products: products,
		coupons:  coupons,
		cfg:      cfg,
	}

	if v, ok := session.Get(cfg.CouponKey); ok {
		if id, ok := v.(int64); ok {
			c.couponID = id
		}
	}

	if v, ok := session.Get(cfg.SessionKey); ok {
		if lines, ok := v.(Lines); ok && lines != nil {
			c.lines = lines
		}
	}
	if c.lines == nil {
		c.lines = Lines{}
		session.Set(cfg.SessionKey, c.lines)
	}

	return c
}

// Add puts quantity units of p into the cart. With override the line
// quantity is replaced, otherwise it is incremented. The price is captured
// only when the line is created.
func (c *Cart) Add(p product.Product, quantity int, override bool) {
	line, ok := c.lines[p.ID]
	if !ok {
		line = Line{Quantity: 0, Price: p.Price.String()}
	}
	if override {
		line.Quantity = quantity
	} else {
		line.Quantity += quantity
	}
	c.lines[p.ID] = line
	c.save()
}

// Remove deletes the line for productID. Removing an absent product leaves
// the session untouched.
func (c *Cart) Remove(productID string) {
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	c.save()
}

// Line returns the stored line for productID.
func (c *Cart) Line(productID string) (Line, bool) {
	l, ok := c.lines[productID]
	return l, ok
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Len returns the number of units in the cart, not the number of lines.
func (c *Cart) Len() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Items looks up the products of all lines in one batch and returns a
// sequence over the lines ordered by product id. Each call takes a fresh
// snapshot, and the returned sequence can be ranged over more than once.
func (c *Cart) Items(ctx context.Context) (iter.Seq[Item], error) {
	ids := slices.Sorted(maps.Keys(c.lines))
	lines := maps.Clone(c.lines)

	byID := make(map[string]*product.Product, len(ids))
	if len(ids) > 0 {
		fetched, err := c.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get cart products")
		}
		for i := range fetched {
			byID[fetched[i].ID] = &fetched[i]
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		zctx.From(ctx).Warn("Cart references unknown products",
			zap.Strings("product_ids", missing),
		)
	}

	return func(yield func(Item) bool) {
		for _, id := range ids {
			l := lines[id]
			item := Item{
				ProductID:  id,
				Product:    byID[id],
				Quantity:   l.Quantity,
				Price:      l.UnitPrice(),
				TotalPrice: lineTotal(l),
			}
			if !yield(item) {
				return
			}
		}
	}, nil
}

// TotalPrice sums price × quantity over all lines.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(lineTotal(l))
	}
	return total
}

// CouponID returns the coupon id stored in the session, or 0.
func (c *Cart) CouponID() int64 {
	return c.couponID
}

// Coupon resolves the session coupon. It returns nil without error when no
// coupon is set or the stored id no longer exists.
func (c *Cart) Coupon(ctx context.Context) (*coupon.Coupon, error) {
	if c.couponID == 0 {
		return nil, nil
	}
	if c.couponResolved {
		return c.coupon, nil
	}

	cp, err := c.coupons.GetByID(ctx, c.couponID)
	if err != nil {
		if !errors.Is(err, coupon.ErrNotFound) {
			return nil, errors.Wrapf(err, "get coupon %d", c.couponID)
		}
		cp = nil
	}
	c.coupon = cp
	c.couponResolved = true
	return cp, nil
}

// Discount returns the coupon share of the total price, or zero.
func (c *Cart) Discount(ctx context.Context) (decimal.Decimal, error) {
	cp, err := c.Coupon(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if cp == nil {
		return decimal.Zero, nil
	}
	return cp.Rate().Mul(c.TotalPrice()), nil
}

// TotalPriceAfterDiscount returns the total minus the discount, floored at
// zero.
func (c *Cart) TotalPriceAfterDiscount(ctx context.Context) (decimal.Decimal, error) {
	discount, err := c.Discount(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := c.TotalPrice().Sub(discount)
	if total.IsNegative() {
		return decimal.Zero, nil
	}
	return total, nil
}

// SetCoupon stores the coupon id in the session.
func (c *Cart) SetCoupon(id int64) {
	c.couponID = id
	c.coupon = nil
	c.couponResolved = false
	c.session.Set(c.cfg.CouponKey, id)
	c.session.MarkModified()
}

// ClearCoupon removes the coupon id from the session.
func (c *Cart) ClearCoupon() {
	c.couponID = 0
	c.coupon = nil
	c.couponResolved = false
	c.session.Delete(c.cfg.CouponKey)
	c.session.MarkModified()
}

// Clear removes the cart from the session.
func (c *Cart) Clear() {
	c.lines = Lines{}
	c.session.Delete(c.cfg.SessionKey)
	c.session.MarkModified()
}

func (c *Cart) save() {
	c.session.Set(c.cfg.SessionKey, c.lines)
	c.session.MarkModified()
}

func lineTotal(l Line) decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}
