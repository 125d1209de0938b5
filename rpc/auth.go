package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type callerContextKey struct{}

var errNoCaller = errors.New("rpc: no authenticated caller")

// callerFromContext returns the authenticated caller address installed by
// the auth middleware.
func callerFromContext(ctx context.Context) (common.Address, error) {
	caller, ok := ctx.Value(callerContextKey{}).(common.Address)
	if !ok {
		return common.Address{}, errNoCaller
	}
	return caller, nil
}

// requireAuth verifies the HS256 bearer token and stores the subject
// address in the request context. The role checks themselves live in the
// engine; the middleware only establishes who is calling.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims := &jwt.RegisteredClaims{}
		// Expiry is checked against the server clock so the whole request
		// path, token validation included, observes one notion of time.
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.secret, nil
		}, jwt.WithTimeFunc(func() time.Time { return s.clock() }))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !common.IsHexAddress(claims.Subject) {
			writeError(w, http.StatusUnauthorized, "token subject is not an address")
			return
		}

		caller := common.HexToAddress(claims.Subject)
		ctx := context.WithValue(r.Context(), callerContextKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
