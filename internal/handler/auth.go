package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	// SessionCookie carries the signed identity token for browser clients.
	SessionCookie = "session"
	// CartSessionCookie keys the anonymous cart.
	CartSessionCookie = "cart_session"
)

// Verifier turns a bearer token into a principal.
type Verifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate attaches the caller's principal to the request context. A
// request without credentials continues anonymously; a request with invalid
// credentials is rejected with 401.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				zctx.From(r.Context()).Debug("Rejected credentials", zap.Error(err))
				writeAPIError(w, mapError(err, http.StatusNotFound))
				return
			}
			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitKey keys signed-in callers by user id and anonymous ones by IP.
func RateLimitKey(fallback func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if p := auth.FromContext(r.Context()); p.Authenticated() {
			return "user:" + p.UserID
		}
		return "ip:" + fallback(r)
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// cartRef identifies the caller's cart. Anonymous callers without a valid
// cart session cookie are issued a new one.
func (h *Handler) cartRef(w http.ResponseWriter, r *http.Request) cart.Ref {
	ref := cart.Ref{UserID: auth.FromContext(r.Context()).UserID}
	if c, err := r.Cookie(CartSessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			ref.SessionID = id.String()
		}
	}
	if ref.UserID == "" && ref.SessionID == "" {
		ref.SessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     CartSessionCookie,
			Value:    ref.SessionID,
			Path:     "/",
			MaxAge:   int(h.cfg.SessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return ref
}
