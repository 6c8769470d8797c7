package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Identity is the authenticated (or guest) caller of a request.
type Identity struct {
	UserID string
	Role   enums.Role
	Guest  bool
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// WithIdentity injects a non-guest caller into the context.
func WithIdentity(ctx context.Context, userID string, role enums.Role) context.Context {
	return withIdentity(ctx, Identity{UserID: userID, Role: role})
}

// IdentityFromContext returns the caller set by Auth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func RoleFromContext(ctx context.Context) enums.Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}
