package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.catalog.ListPage(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProductPage(&e, page)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeProduct(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.Create(r.Context(), auth.FromContext(r.Context()), &p); err != nil {
		h.failWith(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, p)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := product.Product{ID: id}
	if err := decodeProduct(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.Update(r.Context(), auth.FromContext(r.Context()), &p); err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeProduct(&e, p)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	e.ArrStart()
	for _, c := range categories {
		encodeCategory(&e, c)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var c product.Category
	if err := decodeCategory(r, &c); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.CreateCategory(r.Context(), auth.FromContext(r.Context()), &c); err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCategory(&e, c)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c := product.Category{ID: id}
	if err := decodeCategory(r, &c); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.UpdateCategory(r.Context(), auth.FromContext(r.Context()), &c); err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeCategory(&e, c)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
