package http

import (
	"context"
	"net/http"

	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/security"
	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const principalCtxKey contextKey = "principal"

// Authenticator rejects requests without a verified bearer token and stores the principal.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided or are invalid")
			return
		}
		p, err := security.PrincipalFromClaims(claims)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "invalid token claims: "+err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), principalCtxKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the principal stored by Authenticator.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(domain.Principal)
	return p, ok
}

func principal(r *http.Request) domain.Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

// tokenFromQuery lets websocket clients, which cannot set headers, pass ?token=.
func tokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}
