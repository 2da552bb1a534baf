package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
)

// listUsers serves ?role=user|admin&offset=&limit=; role defaults to user.
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	role := auth.RoleUser
	if raw := r.URL.Query().Get("role"); raw != "" {
		var ok bool
		if role, ok = auth.ParseRole(raw); !ok {
			h.fail(w, r, badRequest("role", errors.Errorf("unknown role %q", raw)))
			return
		}
	}
	req, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.users.List(r.Context(), auth.FromContext(r.Context()), role, req.Offset, req.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeUserPage(&e, page)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) makeAdmin(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.MakeAdmin(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeUser(&e, u)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) removeAdmin(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.RemoveAdmin(r.Context(), auth.FromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var e jx.Encoder
	encodeUser(&e, u)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), auth.FromContext(r.Context()), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
