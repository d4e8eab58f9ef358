package order

import (
	"context"
	"fmt"
	"iter"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/cart"
	"github.com/xenking/kart-shop/internal/domain/coupon"
)

// ErrEmptyCart is returned when an order is submitted with no cart lines.
var ErrEmptyCart = errors.New("cart is empty")

// ProductNotFoundError indicates a cart line whose product no longer exists.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// Cart is the part of the session cart order placement reads and clears.
type Cart interface {
	IsEmpty() bool
	Items(ctx context.Context) (iter.Seq[cart.Item], error)
	Coupon(ctx context.Context) (*coupon.Coupon, error)
	Clear()
}

var _ Cart = (*cart.Cart)(nil)

// Dispatcher schedules the order-created notification. It must not block
// on delivery; failures are its own concern.
type Dispatcher interface {
	OrderCreated(ctx context.Context, orderID int64) error
}

// Options configures optional Service dependencies.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
}

// Service encapsulates order placement business logic.
type Service struct {
	orders     Repository
	dispatcher Dispatcher
	forms      *FormValidator

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(orders Repository, dispatcher Dispatcher, opts Options) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("kart-shop/order")
	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders persisted successfully"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	failed, err := meter.Int64Counter("orders.failed",
		metric.WithDescription("Order submissions rejected or failed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return &Service{
		orders:     orders,
		dispatcher: dispatcher,
		forms:      NewFormValidator(),
		tracer:     opts.TracerProvider.Tracer("kart-shop/order"),
		placed:     placed,
		failed:     failed,
	}, nil
}

// PlaceOrder validates the form and the cart, persists the order with its
// items, clears the cart and schedules the confirmation notification.
//
// Nothing is written and the cart is left as is when validation fails.
func (s *Service) PlaceOrder(ctx context.Context, c Cart, form Form) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1)
		}
		span.End()
	}()

	form.Normalize()
	if err := s.forms.Validate(form); err != nil {
		return nil, err
	}

	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items, err := c.Items(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}

	o := &Order{
		FirstName:  form.FirstName,
		LastName:   form.LastName,
		Email:      form.Email,
		Address:    form.Address,
		PostalCode: form.PostalCode,
		City:       form.City,
	}
	for item := range items {
		if item.Product == nil {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		o.Items = append(o.Items, OrderItem{
			ProductID: item.ProductID,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	cp, err := c.Coupon(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve coupon")
	}
	if cp != nil {
		id := cp.ID
		o.CouponID = &id
		o.Discount = cp.Discount
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(
		attribute.Int64("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
	)
	s.placed.Add(ctx, 1)

	c.Clear()

	lg := zctx.From(ctx)
	if err := s.dispatcher.OrderCreated(ctx, o.ID); err != nil {
		lg.Warn("Order notification not scheduled", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int("items", len(o.Items)),
		zap.Int("discount", o.Discount),
	)

	return o, nil
}

// Get returns a stored order for the staff views.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}
