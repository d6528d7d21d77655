// Package auth provides stateless bearer-token verification.
//
// Tokens are HS256 JWTs issued by the identity provider and verified locally
// against a shared secret — no network round-trip. The subject claim is the
// authenticated principal that scopes every data operation downstream.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// GenericMessage is the only auth-failure detail shown to external callers.
// Specific causes stay in internal logs so the boundary does not leak which
// check failed.
const GenericMessage = "Invalid or expired access token"

// DefaultAudience is the audience claim the identity provider stamps on
// access tokens. Overridable via configuration.
const DefaultAudience = "authenticated"

// ErrInvalidToken is wrapped by every verification failure.
var ErrInvalidToken = errors.New("auth: invalid or expired access token")

// Verifier validates access tokens against a fixed symmetric secret and
// expected audience, both resolved once at startup. Safe for concurrent use.
type Verifier struct {
	secret   []byte
	audience string
}

// NewVerifier creates a Verifier. An empty audience falls back to
// DefaultAudience. An empty secret is permitted at construction so the
// process can start without auth configured; Verify then fails closed.
func NewVerifier(secret, audience string) *Verifier {
	if audience == "" {
		audience = DefaultAudience
	}
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Verify validates a bearer token and returns the subject claim as the
// authenticated principal. It fails when the token is empty, the secret is
// not configured, the signature does not verify, the token is expired or not
// yet valid, the audience does not match, the token is malformed, or the
// subject claim is missing. Every failure wraps ErrInvalidToken; the raw
// secret is never included in errors or logs.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", fmt.Errorf("%w: token is required", ErrInvalidToken)
	}
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: signing secret not configured", ErrInvalidToken)
	}

	token, err := jwt.Parse(
		tokenStr,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}
	return sub, nil
}
