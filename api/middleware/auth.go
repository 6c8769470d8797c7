package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// TokenVerifier turns a raw bearer credential into claims.
type TokenVerifier interface {
	Parse(raw string) (*pkgAuth.AccessTokenClaims, error)
}

// Auth validates a bearer token and seeds the request context with the caller.
// Requests without an Authorization header run as the guest user when guests
// are allowed; a present but unusable header is always rejected.
func Auth(tokens TokenVerifier, authCfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	guestID := strings.TrimSpace(authCfg.GuestUserID)
	guestOK := authCfg.AllowGuest && guestID != ""

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" && guestOK {
				next.ServeHTTP(w, r.WithContext(withCaller(r, logg, guestID, enums.RoleCustomer, true)))
				return
			}

			token, err := pkgAuth.BearerToken(header)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "missing credentials"))
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(withCaller(r, logg, claims.UserID(), claims.Role, false)))
		})
	}
}

func withCaller(r *http.Request, logg *logger.Logger, userID string, role enums.Role, guest bool) context.Context {
	ctx := withIdentity(r.Context(), Identity{UserID: userID, Role: role, Guest: guest})
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"user_id":    userID,
			"actor_role": string(role),
			"guest":      guest,
		})
	}
	return ctx
}
