package handlers

import (
	"context"
	"net/http"

	"github.com/medportal/timetable/libs/auth"
	"github.com/medportal/timetable/libs/httpx"
	"github.com/medportal/timetable/services/timetable-service/internal/portal"
)

// TokenVerifier turns a bearer token into portal claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// RequireAuth verifies the bearer token, stores the claims in the request
// context and forwards the raw token to portal calls made for this request.
func RequireAuth(v TokenVerifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := v.Verify(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = portal.WithBearer(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func callerOf(r *http.Request) *auth.Claims {
	c, _ := auth.ClaimsFromContext(r.Context())
	return c
}
