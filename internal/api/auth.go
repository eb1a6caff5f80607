package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ─── Bearer Auth ────────────────────────────────────────────────────────────
// Mutating routes require an HS256 token. The "sub" claim is the account
// the request acts as; the engine enforces ownership against it.

type ctxKey int

const callerKey ctxKey = iota

// Authenticator verifies and issues caller tokens.
type Authenticator struct {
	secret []byte
	admin  string
	issuer string
}

// NewAuthenticator creates an authenticator. admin names the account allowed
// to change ledger config, fund fee reserves, and suspend workers.
func NewAuthenticator(secret, admin string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Authenticator{secret: []byte(secret), admin: admin, issuer: "trail"}, nil
}

// Admin returns the configured admin account.
func (a *Authenticator) Admin() string { return a.admin }

// IssueToken signs a token for sub, valid for ttl (no expiry when ttl <= 0).
func (a *Authenticator) IssueToken(sub string, ttl time.Duration) (string, error) {
	if sub == "" {
		return "", errors.New("subject is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  sub,
		Issuer:   a.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and returns its subject.
func (a *Authenticator) Verify(raw string) (string, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(a.issuer))
	if err != nil {
		return "", err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sub, err := a.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), sub)))
	})
}

// RequireAdmin must run after Middleware.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.admin == "" || callerFrom(r.Context()) != a.admin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// callerFrom returns the authenticated account, or "".
func callerFrom(ctx context.Context) string {
	s, _ := ctx.Value(callerKey).(string)
	return s
}
