package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/identity"
)

// badRequestError reports a malformed request body, path or query value.
type badRequestError struct {
	field string
	err   error
}

func (e *badRequestError) Error() string {
	return "invalid " + e.field + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(field string, err error) error {
	return &badRequestError{field: field, err: err}
}

// apiError is the body of every non-2xx response.
type apiError struct {
	Code    int
	Message string
	Field   string
}

func (e apiError) encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Code)
	enc.FieldStart("message")
	enc.Str(e.Message)
	if e.Field != "" {
		enc.FieldStart("field")
		enc.Str(e.Field)
	}
	enc.ObjEnd()
}

// mapError converts a domain error to its API representation. missingProduct
// is the status for an unknown product: 404 when the product is the resource,
// 422 when it is referenced from a cart or draft.
func mapError(err error, missingProduct int) apiError {
	var (
		unauthorized *auth.UnauthorizedError
		stock        *product.InsufficientStockError
		quantity     *product.InvalidQuantityError
		validation   *product.ValidationError
		address      *checkout.InvalidAddressError
		bad          *badRequestError
		missing      *product.NotFoundError
	)
	switch {
	case errors.As(err, &bad):
		return apiError{Code: http.StatusBadRequest, Message: bad.Error(), Field: bad.field}
	case errors.Is(err, identity.ErrInvalidToken):
		return apiError{Code: http.StatusUnauthorized, Message: identity.ErrInvalidToken.Error()}
	case errors.As(err, &unauthorized):
		if unauthorized.Authenticated() {
			return apiError{Code: http.StatusForbidden, Message: unauthorized.Error()}
		}
		return apiError{Code: http.StatusUnauthorized, Message: unauthorized.Error()}
	case errors.Is(err, auth.ErrUserNotFound):
		return apiError{Code: http.StatusNotFound, Message: auth.ErrUserNotFound.Error()}
	case errors.Is(err, auth.ErrLastAdmin), errors.Is(err, auth.ErrUserHasOrders):
		return apiError{Code: http.StatusConflict, Message: err.Error()}
	case errors.As(err, &stock):
		return apiError{Code: http.StatusConflict, Message: stock.Error()}
	case errors.As(err, &quantity):
		return apiError{Code: http.StatusUnprocessableEntity, Message: quantity.Error(), Field: "quantity"}
	case errors.As(err, &validation):
		return apiError{Code: http.StatusUnprocessableEntity, Message: validation.Error(), Field: validation.Field}
	case errors.As(err, &address):
		return apiError{Code: http.StatusUnprocessableEntity, Message: address.Error(), Field: address.Field}
	case errors.As(err, &missing):
		return apiError{Code: missingProduct, Message: missing.Error()}
	case errors.Is(err, product.ErrNotFound):
		return apiError{Code: missingProduct, Message: product.ErrNotFound.Error()}
	case errors.Is(err, product.ErrCategoryNotFound):
		return apiError{Code: http.StatusNotFound, Message: product.ErrCategoryNotFound.Error()}
	case errors.Is(err, product.ErrCategoryInUse), errors.Is(err, product.ErrNameTaken):
		return apiError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, cart.ErrItemNotFound):
		return apiError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, cart.ErrNoOwner):
		return apiError{Code: http.StatusBadRequest, Message: cart.ErrNoOwner.Error()}
	case errors.Is(err, checkout.ErrCartEmpty):
		return apiError{Code: http.StatusUnprocessableEntity, Message: checkout.ErrCartEmpty.Error()}
	case errors.Is(err, checkout.ErrDraftMissing):
		return apiError{Code: http.StatusGone, Message: checkout.ErrDraftMissing.Error()}
	case errors.Is(err, checkout.ErrCheckoutFailed):
		return apiError{Code: http.StatusInternalServerError, Message: checkout.ErrCheckoutFailed.Error()}
	case errors.Is(err, order.ErrNotFound):
		return apiError{Code: http.StatusNotFound, Message: order.ErrNotFound.Error()}
	default:
		return apiError{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.failWith(w, r, err, http.StatusNotFound)
}

func (h *Handler) failWith(w http.ResponseWriter, r *http.Request, err error, missingProduct int) {
	e := mapError(err, missingProduct)
	lg := zctx.From(r.Context())
	if e.Code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", e.Code), zap.Error(err))
	}
	writeAPIError(w, e)
}

func writeAPIError(w http.ResponseWriter, e apiError) {
	var enc jx.Encoder
	e.encode(&enc)
	writeJSON(w, e.Code, &enc)
}

func writeJSON(w http.ResponseWriter, code int, enc *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(enc.Bytes())
}
