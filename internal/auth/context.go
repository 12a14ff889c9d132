package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

type accountIDKey struct{}
type roleKey struct{}

func ContextWithAccount(ctx context.Context, accountID uuid.UUID, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, accountIDKey{}, accountID)
	return context.WithValue(ctx, roleKey{}, role)
}

func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(accountIDKey{}).(uuid.UUID)
	return id, ok
}

func RoleFromContext(ctx context.Context) (domain.Role, bool) {
	role, ok := ctx.Value(roleKey{}).(domain.Role)
	return role, ok
}
