// Package handler serves the shop over HTTP: the product catalog as JSON,
// the session cart and checkout as HTML forms, and staff order views.
package handler

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/cart"
	"github.com/xenking/kart-shop/internal/domain/auth"
	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/order"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/render"
	"github.com/xenking/kart-shop/internal/session"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// Cart names the session keys of the cart.
	Cart cart.Config
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
}

// Handler serves all shop routes.
type Handler struct {
	products product.Repository
	coupons  coupon.Repository
	codes    coupon.Validator
	orders   *order.Service
	apikeys  auth.Repository
	render   *render.Renderer
	forms    *validator.Validate
	cfg      Config
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Repository,
	orders *order.Service,
	apikeys auth.Repository,
	renderer *render.Renderer,
) *Handler {
	return &Handler{
		products: products,
		coupons:  coupons,
		codes:    coupon.NewRepoValidator(coupons),
		orders:   orders,
		apikeys:  apikeys,
		render:   renderer,
		forms:    validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// Routes returns the router. sessions must install a session.Session in
// the request context; it wraps the cart and checkout routes only.
func (h *Handler) Routes(sessions func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{productID}", h.GetProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(sessions)
		r.Get("/cart", h.CartDetail)
		r.Post("/cart/add/{productID}", h.CartAdd)
		r.Post("/cart/remove/{productID}", h.CartRemove)
		r.Post("/coupons/apply", h.ApplyCoupon)
		r.Get("/orders/create", h.OrderForm)
		r.Post("/orders/create", h.OrderCreate)
	})

	r.Route("/admin/orders/{orderID}", func(r chi.Router) {
		r.Use(h.StaffOnly)
		r.Get("/", h.AdminOrderDetail)
		r.Get("/pdf", h.AdminOrderPDF)
	})

	return r
}

// cart binds the session of r to a cart.
func (h *Handler) cart(r *http.Request) (*cart.Cart, error) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return nil, errors.New("no session in request context")
	}
	return cart.New(s, h.products, h.coupons, h.cfg.Cart), nil
}

// page renders a full HTML page with the given status.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.render.HTML(&buf, name, data); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
