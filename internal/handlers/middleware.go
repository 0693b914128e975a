package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tanvir-rahman/doctorsportal/internal/booking"
	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/libs/auth"
)

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

func PrincipalFromContext(ctx context.Context) (booking.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(booking.Principal)
	return p, ok
}

// RequireAuth verifies the bearer token and stores the resolved principal on
// the request context.
func RequireAuth(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		principal := booking.Principal{Email: claims.Email, Role: claims.Role}
		ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin wraps RequireAuth and additionally gates on the admin role.
func RequireAdmin(secret string, next http.Handler) http.Handler {
	return RequireAuth(secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.Role != model.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
