package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
)

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.orders.ListMine(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrderPage(&e, page)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.orders.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrder(&e, d.Order, d.Shipment)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.orders.ListAll(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeOrderPage(&e, page)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Stats(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeStats(&e, s)
	writeJSON(w, http.StatusOK, &e)
}
