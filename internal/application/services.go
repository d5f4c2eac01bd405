package application

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gamgee/internal/domain"
	"gamgee/internal/ports"
)

type RoleService struct {
	repo ports.RoleRepository
}

func NewRoleService(repo ports.RoleRepository) *RoleService {
	return &RoleService{repo: repo}
}

func (s *RoleService) ListByAppID(ctx context.Context, appID string) ([]domain.Role, error) {
	if appID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.repo.ListByAppID(ctx, appID)
}

type UserService struct {
	userRepo ports.UserRoleRepository
	roleRepo ports.RoleRepository
}

func NewUserService(userRepo ports.UserRoleRepository, roleRepo ports.RoleRepository) *UserService {
	return &UserService{userRepo: userRepo, roleRepo: roleRepo}
}

func (s *UserService) AssignRole(ctx context.Context, appID, userID, roleID string) error {
	if appID == "" || userID == "" || roleID == "" {
		return domain.ErrInvalidInput
	}
	roles, err := s.roleRepo.ListByAppID(ctx, appID)
	if err != nil {
		return err
	}
	found := slices.ContainsFunc(roles, func(role domain.Role) bool { return role.ID == roleID })
	if !found {
		return domain.ErrNotFound
	}
	return s.userRepo.AssignRole(ctx, appID, userID, roleID)
}

func (s *UserService) GetUserAppRoles(ctx context.Context, appID, userID string) (domain.UserAppRoles, error) {
	if appID == "" || userID == "" {
		return domain.UserAppRoles{}, domain.ErrInvalidInput
	}
	return s.userRepo.GetByUserAndApp(ctx, appID, userID)
}

type AuthorizationService struct {
	userRepo ports.UserRoleRepository
	roleRepo ports.RoleRepository
}

func NewAuthorizationService(userRepo ports.UserRoleRepository, roleRepo ports.RoleRepository) *AuthorizationService {
	return &AuthorizationService{userRepo: userRepo, roleRepo: roleRepo}
}

func (s *AuthorizationService) IsAllowed(ctx context.Context, appID, userID, permission string) (bool, error) {
	if appID == "" || userID == "" || permission == "" {
		return false, domain.ErrInvalidInput
	}
	userRoles, err := s.userRepo.GetByUserAndApp(ctx, appID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(userRoles.Roles) == 0 {
		return false, nil
	}
	roles, err := s.roleRepo.ListByAppID(ctx, appID)
	if err != nil {
		return false, err
	}
	rolePerms := map[string][]string{}
	for _, role := range roles {
		rolePerms[role.ID] = role.Permissions
	}
	for _, userRole := range userRoles.Roles {
		if perms, ok := rolePerms[userRole]; ok && slices.Contains(perms, permission) {
			return true, nil
		}
	}
	return false, nil
}

// Authorizer is the part of AuthorizationService used by RequirePermission.
type Authorizer interface {
	IsAllowed(ctx context.Context, appID, userID, permission string) (bool, error)
}

// RequirePermission builds an authorize callback that admits callers holding
// permission in appID. The user must be a domain.Principal.
func RequirePermission(svc Authorizer, appID, permission string) func(ctx context.Context, user any) (bool, error) {
	return func(ctx context.Context, user any) (bool, error) {
		var userID string
		switch p := user.(type) {
		case domain.Principal:
			userID = p.UserID
		case *domain.Principal:
			if p != nil {
				userID = p.UserID
			}
		default:
			return false, fmt.Errorf("authorize: unexpected user type %T", user)
		}
		if userID == "" {
			return false, nil
		}
		return svc.IsAllowed(ctx, appID, userID, permission)
	}
}
