package http

import (
	"context"
	"fmt"

	"gamgee/internal/application"
	"gamgee/internal/config"
	"gamgee/internal/infrastructure/auth"
	"gamgee/internal/infrastructure/dynamodb"
	"gamgee/internal/ports"
)

// Build connects the DynamoDB store, the configured authenticator and the
// services, and returns every function.
func Build(ctx context.Context, cfg config.Config, logger ports.Logger) ([]Route, error) {
	if err := cfg.RequireTable(); err != nil {
		return nil, err
	}
	authenticator, err := auth.NewAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}
	ddbClient, err := dynamodb.NewClient(ctx, cfg.Region, cfg.TableName)
	if err != nil {
		return nil, fmt.Errorf("dynamodb client: %w", err)
	}
	roleRepo := dynamodb.NewRoleRepository(ddbClient)
	userRepo := dynamodb.NewUserRoleRepository(ddbClient)

	return Functions(Deps{
		Roles:        application.NewRoleService(roleRepo),
		Users:        application.NewUserService(userRepo, roleRepo),
		Authz:        application.NewAuthorizationService(userRepo, roleRepo),
		Authenticate: auth.Func(authenticator),
		AdminAppID:   cfg.AdminAppID,
		Logger:       logger,
	})
}
