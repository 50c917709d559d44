package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

const tokenScope = "webhook"

// AuthManager issues and checks HS256 bearer tokens for the HTTP API.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	return &AuthManager{secret: []byte(secret), ttl: ttl}
}

type APIClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Mint returns a signed token for subject, valid for the configured TTL.
func (a *AuthManager) Mint(subject string) (string, error) {
	now := time.Now()
	claims := APIClaims{
		Scope: tokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*APIClaims, error) {
	// Authorization: Bearer <jwt>
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, ErrMissingToken
	}
	tok := strings.TrimSpace(hdr[7:])
	if tok == "" {
		return nil, ErrMissingToken
	}
	return a.parse(tok)
}

func (a *AuthManager) parse(tok string) (*APIClaims, error) {
	claims := &APIClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Scope != tokenScope {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.ParseFromRequest(r); err != nil {
			code := http.StatusForbidden
			if errors.Is(err, ErrMissingToken) {
				code = http.StatusUnauthorized
			}
			writeJSON(w, code, errorBody(err.Error()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
