package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-shop/internal/domain/order"
	"github.com/xenking/kart-shop/internal/render"
)

var orderFields = []struct{ name, label string }{
	{"first_name", "First name"},
	{"last_name", "Last name"},
	{"email", "E-mail"},
	{"address", "Address"},
	{"postal_code", "Postal code"},
	{"city", "City"},
}

func formFields(r *http.Request, verr *order.ValidationError) []render.FormField {
	msgs := make(map[string]string)
	if verr != nil {
		for _, f := range verr.Fields {
			msgs[f.Field] = f.Message
		}
	}
	out := make([]render.FormField, len(orderFields))
	for i, f := range orderFields {
		out[i] = render.FormField{
			Name:  f.name,
			Label: f.label,
			Value: r.PostFormValue(f.name),
			Error: msgs[f.name],
		}
	}
	return out
}

func (h *Handler) checkoutPage(w http.ResponseWriter, r *http.Request, status int, verr *order.ValidationError) {
	c, err := h.cart(r)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	view, err := render.NewCartView(r.Context(), c)
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "cart view"))
		return
	}
	h.page(w, r, status, render.OrderCreate, render.OrderCreateView{
		Cart:   view,
		Fields: formFields(r, verr),
	})
}

// OrderForm renders the checkout form.
func (h *Handler) OrderForm(w http.ResponseWriter, r *http.Request) {
	h.checkoutPage(w, r, http.StatusOK, nil)
}

// OrderCreate places the order from the session cart.
func (h *Handler) OrderCreate(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart(r)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	form := order.Form{
		FirstName:  r.PostFormValue("first_name"),
		LastName:   r.PostFormValue("last_name"),
		Email:      r.PostFormValue("email"),
		Address:    r.PostFormValue("address"),
		PostalCode: r.PostFormValue("postal_code"),
		City:       r.PostFormValue("city"),
	}

	o, err := h.orders.PlaceOrder(r.Context(), c, form)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	h.page(w, r, http.StatusOK, render.OrderCreated, render.OrderView{Order: o})
}

// orderError maps order placement errors to responses.
func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		h.checkoutPage(w, r, http.StatusUnprocessableEntity, verr)
		return
	}
	if errors.Is(err, order.ErrEmptyCart) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var pnfErr *order.ProductNotFoundError
	if errors.As(err, &pnfErr) {
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
		return
	}
	var iqErr *order.InvalidQuantityError
	if errors.As(err, &iqErr) {
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
		return
	}

	h.internalError(w, r, err)
}

// loadOrder resolves the order in the URL and the names of its products.
// It writes the error response and returns false on failure.
func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (render.OrderView, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "order not found")
		return render.OrderView{}, false
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return render.OrderView{}, false
		}
		h.internalError(w, r, err)
		return render.OrderView{}, false
	}

	ids := make([]string, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.ProductID
	}
	products, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "order products"))
		return render.OrderView{}, false
	}
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return render.OrderView{Order: o, Names: names}, true
}

// AdminOrderDetail shows an order to staff, as JSON when the client
// accepts it and as HTML otherwise.
func (h *Handler) AdminOrderDetail(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeOrder(e, view)
		})
		return
	}
	h.page(w, r, http.StatusOK, render.AdminOrderDetail, view)
}

// AdminOrderPDF renders the order receipt as a PDF attachment.
func (h *Handler) AdminOrderPDF(w http.ResponseWriter, r *http.Request) {
	view, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	markup, err := h.render.Markup(render.OrderPDF, view)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.render.PDF(&buf, markup); err != nil {
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("filename=order_%d.pdf", view.Order.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func encodeOrder(e *jx.Encoder, view render.OrderView) {
	o := view.Order
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("first_name", func(e *jx.Encoder) { e.Str(o.FirstName) })
		e.Field("last_name", func(e *jx.Encoder) { e.Str(o.LastName) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Email) })
		e.Field("address", func(e *jx.Encoder) { e.Str(o.Address) })
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(o.PostalCode) })
		e.Field("city", func(e *jx.Encoder) { e.Str(o.City) })
		e.Field("created", func(e *jx.Encoder) { e.Str(o.Created.UTC().Format(time.RFC3339)) })
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid) })
		e.Field("coupon_id", func(e *jx.Encoder) {
			if o.CouponID == nil {
				e.Null()
				return
			}
			e.Int64(*o.CouponID)
		})
		e.Field("discount", func(e *jx.Encoder) { e.Int(o.Discount) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(view.Names[item.ProductID]) })
						e.Field("price", func(e *jx.Encoder) { e.Str(item.Price.StringFixed(2)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("cost", func(e *jx.Encoder) { e.Str(item.Cost().StringFixed(2)) })
					})
				}
			})
		})
		e.Field("total_cost", func(e *jx.Encoder) { e.Str(o.TotalCost().StringFixed(2)) })
	})
}
