package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeCart responds with the priced cart.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, cartID int64, code int) {
	d, err := h.carts.Detail(r.Context(), cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCart(&e, d)
	writeJSON(w, code, &e)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c.ID, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), c.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c.ID, http.StatusOK)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddItem(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.carts.AddOrIncrement(r.Context(), c.ID, req.ProductID, req.Quantity); err != nil {
		h.failWith(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	h.writeCart(w, r, c.ID, http.StatusCreated)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qty, err := decodeQuantity(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.UpdateQuantity(r.Context(), c.ID, itemID, qty); err != nil {
		h.failWith(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	h.writeCart(w, r, c.ID, http.StatusOK)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.Resolve(r.Context(), h.cartRef(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), c.ID, itemID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c.ID, http.StatusOK)
}
