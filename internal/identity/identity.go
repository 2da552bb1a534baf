// Package identity turns signed bearer tokens into auth principals.
//
// Tokens are HS256 JWTs whose subject is the user id and whose "roles" claim
// lists role names. Login and registration happen elsewhere; the Issuer only
// exists so tooling can mint tokens for seeded accounts.
package identity

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/storefront/internal/domain/auth"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier returns a Verifier for tokens signed with secret. An empty
// issuer accepts any issuer.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, leeway: 30 * time.Second}
}

// Verify parses token and returns the principal it names.
func (v *Verifier) Verify(token string) (auth.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return auth.Principal{}, errors.Wrap(ErrInvalidToken, errString(err))
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.Wrap(ErrInvalidToken, "missing subject")
	}

	p := auth.Principal{UserID: claims.Subject}
	for _, r := range claims.Roles {
		p.Roles = append(p.Roles, auth.Role(r))
	}
	return p, nil
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}

// Issuer mints tokens.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer returns an Issuer signing with secret.
func NewIssuer(secret []byte, issuer string) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, now: time.Now}
}

// Issue signs a token for u valid for ttl.
func (i *Issuer) Issue(u auth.User, ttl time.Duration) (string, error) {
	now := i.now()
	roles := make([]string, len(u.Roles))
	for n, r := range u.Roles {
		roles[n] = string(r)
	}
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
