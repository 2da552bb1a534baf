package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
)

var secret = []byte("test-secret")

func TestIssueVerify(t *testing.T) {
	tok, err := NewIssuer(secret, "shop").Issue(auth.User{
		ID:    "alice",
		Roles: []auth.Role{auth.RoleUser, auth.RoleAdmin},
	}, time.Hour)
	require.NoError(t, err)

	p, err := NewVerifier(secret, "shop").Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.IsInRole(auth.RoleAdmin))

	// Empty issuer accepts any.
	_, err = NewVerifier(secret, "").Verify(tok)
	require.NoError(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	valid := func(mut func(*Issuer, *auth.User) time.Duration) string {
		iss := NewIssuer(secret, "shop")
		u := auth.User{ID: "alice", Roles: []auth.Role{auth.RoleUser}}
		ttl := mut(iss, &u)
		tok, err := iss.Issue(u, ttl)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "expired", token: valid(func(i *Issuer, _ *auth.User) time.Duration {
			i.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
			return time.Hour
		})},
		{name: "wrong issuer", token: valid(func(i *Issuer, _ *auth.User) time.Duration {
			i.issuer = "elsewhere"
			return time.Hour
		})},
		{name: "wrong secret", token: valid(func(i *Issuer, _ *auth.User) time.Duration {
			i.secret = []byte("other")
			return time.Hour
		})},
		{name: "no subject", token: valid(func(_ *Issuer, u *auth.User) time.Duration {
			u.ID = ""
			return time.Hour
		})},
		{name: "alg none", token: func() string {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "alice",
					Issuer:    "shop",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return tok
		}()},
	}

	v := NewVerifier(secret, "shop")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
