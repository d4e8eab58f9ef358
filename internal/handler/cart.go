package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/render"
)

// MaxQuantity bounds the quantity accepted by the add-to-cart form.
const MaxQuantity = 20

type addForm struct {
	Quantity int `validate:"min=1,max=20"`
	Override bool
}

type couponForm struct {
	Code string `validate:"required,max=50"`
}

// formBool reads a checkbox value; "", "false" and "0" are false.
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}

// CartDetail renders the cart page.
func (h *Handler) CartDetail(w http.ResponseWriter, r *http.Request) {
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
	h.page(w, r, http.StatusOK, render.CartDetail, view)
}

// CartAdd adds the product to the cart, or replaces its quantity when
// override is set. An invalid form leaves the cart unchanged.
func (h *Handler) CartAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.products.GetByID(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, errors.Wrap(err, "get product"))
		return
	}

	c, err := h.cart(r)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	qty, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	form := addForm{Quantity: qty, Override: formBool(r.PostFormValue("override"))}
	if err == nil {
		err = h.forms.Struct(form)
	}
	if err != nil {
		zctx.From(ctx).Debug("Ignoring invalid cart form", zap.String("product_id", p.ID), zap.Error(err))
		redirect(w, r, "/cart")
		return
	}

	c.Add(*p, form.Quantity, form.Override)
	redirect(w, r, "/cart")
}

// CartRemove drops the product line. Lines of products that no longer
// exist can be removed too.
func (h *Handler) CartRemove(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart(r)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	c.Remove(chi.URLParam(r, "productID"))
	redirect(w, r, "/cart")
}

// ApplyCoupon attaches a valid coupon to the cart. An unknown, inactive or
// expired code detaches the current one.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.cart(r)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	form := couponForm{Code: strings.TrimSpace(r.PostFormValue("code"))}
	if err := h.forms.Struct(form); err != nil {
		redirect(w, r, "/cart")
		return
	}

	cp, err := h.codes.Validate(ctx, form.Code)
	switch {
	case err == nil:
		c.SetCoupon(cp.ID)
	case errors.Is(err, coupon.ErrInvalidCoupon), errors.Is(err, coupon.ErrCouponExpired):
		zctx.From(ctx).Debug("Coupon rejected", zap.String("code", form.Code), zap.Error(err))
		c.ClearCoupon()
	default:
		h.internalError(w, r, errors.Wrap(err, "validate coupon"))
		return
	}
	redirect(w, r, "/cart")
}
