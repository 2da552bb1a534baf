package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
)

// beginCheckout drafts an order from the caller's cart.
func (h *Handler) beginCheckout(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.RequireUser(p); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.checkout.Begin(r.Context(), p, c.ID)
	if err != nil {
		h.failWith(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	var e jx.Encoder
	encodeSummary(&e, summary)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) confirmCheckout(w http.ResponseWriter, r *http.Request) {
	addr, err := decodeAddress(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.checkout.Confirm(r.Context(), auth.FromContext(r.Context()), r.PathValue("token"), addr)
	if err != nil {
		h.failWith(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	var e jx.Encoder
	encodeResult(&e, res)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.Abandon(r.Context(), auth.FromContext(r.Context()), r.PathValue("token")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
