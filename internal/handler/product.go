package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-shop/internal/domain/product"
)

// ListProducts returns every available product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

// encodeProduct writes p with image paths prefixed by the image base URL.
// Prices are strings to keep them exact.
func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	base := h.cfg.ImageBaseURL
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.StringFixed(2)) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("available", func(e *jx.Encoder) { e.Bool(p.Available) })
		e.Field("image", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("thumbnail", func(e *jx.Encoder) { e.Str(base + p.Image.Thumbnail) })
				e.Field("mobile", func(e *jx.Encoder) { e.Str(base + p.Image.Mobile) })
				e.Field("tablet", func(e *jx.Encoder) { e.Str(base + p.Image.Tablet) })
				e.Field("desktop", func(e *jx.Encoder) { e.Str(base + p.Image.Desktop) })
			})
		})
	})
}
