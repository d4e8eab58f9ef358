package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-shop/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(first_name, last_name, email, address, postal_code, city, paid, coupon_id, discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created, updated`

	getOrderSQL = `SELECT id, first_name, last_name, email, address, postal_code, city,
		created, updated, paid, coupon_id, discount
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, product_id, price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order row and all its items in one transaction. Items
// are sent with CopyFrom; a failing item rolls back the order as well.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		err := tx.QueryRow(ctx, createOrderSQL,
			o.FirstName, o.LastName, o.Email, o.Address, o.PostalCode, o.City,
			o.Paid, o.CouponID, o.Discount,
		).Scan(&o.ID, &o.Created, &o.Updated)
		if err != nil {
			return struct{}{}, fmt.Errorf("inserting order: %w", err)
		}

		rows := make([][]any, len(o.Items))
		for i, item := range o.Items {
			rows[i] = []any{o.ID, item.ProductID, item.Price, item.Quantity}
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "product_id", "price", "quantity"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("inserting items of order %d: %w", o.ID, err)
		}
		if int(n) != len(o.Items) {
			return struct{}{}, fmt.Errorf("inserted %d of %d items of order %d", n, len(o.Items), o.ID)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		discount int32
	)
	err := row.Scan(
		&o.ID, &o.FirstName, &o.LastName, &o.Email, &o.Address, &o.PostalCode, &o.City,
		&o.Created, &o.Updated, &o.Paid, &o.CouponID, &discount,
	)
	o.Discount = int(discount)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.OrderItem, error) {
	var (
		item     order.OrderItem
		price    decimal.Decimal
		quantity int32
	)
	err := row.Scan(&item.ID, &item.ProductID, &price, &quantity)
	item.Price = price
	item.Quantity = int(quantity)
	return item, err
}
