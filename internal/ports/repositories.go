package ports

import (
	"context"

	"gamgee/internal/domain"
)

type RoleRepository interface {
	ListByAppID(ctx context.Context, appID string) ([]domain.Role, error)
}

type UserRoleRepository interface {
	AssignRole(ctx context.Context, appID, userID, roleID string) error
	GetByUserAndApp(ctx context.Context, appID, userID string) (domain.UserAppRoles, error)
}
