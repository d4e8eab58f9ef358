// Package notify delivers the "order created" notification outside the
// request that placed the order.
package notify

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// OrderCreated is the event published after an order is committed.
type OrderCreated struct {
	OrderID  int64
	PlacedAt time.Time
}

// Encode writes the event as JSON.
func (ev OrderCreated) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(ev.OrderID)
	e.FieldStart("placed_at")
	e.Str(ev.PlacedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

// Decode reads the event from JSON. Unknown fields are skipped.
func (ev *OrderCreated) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "order_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "order_id")
			}
			ev.OrderID = v
		case "placed_at":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "placed_at")
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return errors.Wrap(err, "placed_at")
			}
			ev.PlacedAt = t
		default:
			return d.Skip()
		}
		return nil
	})
}

func (ev OrderCreated) marshal() []byte {
	var e jx.Encoder
	ev.Encode(&e)
	return e.Bytes()
}

func unmarshalOrderCreated(data []byte) (OrderCreated, error) {
	var ev OrderCreated
	if err := ev.Decode(jx.DecodeBytes(data)); err != nil {
		return OrderCreated{}, errors.Wrap(err, "decode order created")
	}
	if ev.OrderID <= 0 {
		return OrderCreated{}, errors.Errorf("decode order created: invalid order id %d", ev.OrderID)
	}
	return ev, nil
}

func orderKey(id int64) []byte {
	return strconv.AppendInt(nil, id, 10)
}
