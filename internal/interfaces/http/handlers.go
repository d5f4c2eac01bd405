package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"gamgee/internal/application"
	"gamgee/internal/domain"
	"gamgee/internal/platform/lambda"
	"gamgee/internal/ports"
)

const PermissionAssignRoles = "roles:assign"

// toHTTPError maps service sentinels onto the response catalog. Anything it
// does not recognise is returned as is and ends up as a 500.
func toHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.RequestParseError("Invalid input.")
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrMissing
	case errors.Is(err, domain.ErrPermissionDeny):
		return domain.ErrAuthorization
	default:
		return err
	}
}

type Deps struct {
	Roles        *application.RoleService
	Users        *application.UserService
	Authz        application.Authorizer
	Authenticate lambda.AuthenticateFunc
	AdminAppID   string
	Logger       ports.Logger
}

type whoamiRequest struct {
	User      domain.Principal              `sam:"user"`
	UserAgent string                        `header:"User-Agent,optional"`
	Event     events.APIGatewayProxyRequest `sam:"event"`
	Lambda    *lambdacontext.LambdaContext  `sam:"context"`
}

func whoami(_ context.Context, req *whoamiRequest) (lambda.Fields, error) {
	out := lambda.Fields{
		{Key: "user_id", Value: req.User.UserID},
		{Key: "email", Value: req.User.Email},
		{Key: "groups", Value: req.User.Groups},
		{Key: "user_agent", Value: req.UserAgent},
		{Key: "source_ip", Value: req.Event.RequestContext.Identity.SourceIP},
	}
	if req.Lambda != nil {
		out = append(out, lambda.Field{Key: "request_id", Value: req.Lambda.AwsRequestID})
	}
	return out, nil
}

type listRolesRequest struct {
	AppID string `path:"app_id"`
}

type getUserRolesRequest struct {
	AppID  string `path:"app_id"`
	UserID string `path:"user_id"`
}

type assignRoleRequest struct {
	AppID  string `path:"app_id"`
	UserID string `path:"user_id"`
	RoleID string `body:"role_id" validate:"required"`
}

type authorizeRequest struct {
	AppID      string           `body:"app_id" validate:"required"`
	UserID     string           `body:"user_id,optional"`
	Permission string           `body:"permission" validate:"required"`
	User       domain.Principal `sam:"user"`
}

type echoRequest struct {
	Body  map[string]any    `body:"*"`
	Query map[string]string `query:"*,optional"`
}

func echoHandler(_ context.Context, req *echoRequest) (map[string]any, error) {
	out := map[string]any{"body": req.Body}
	if name, ok := req.Query["name"]; ok {
		out["echo"] = name
	}
	return out, nil
}

type Route struct {
	Method   string
	Path     string
	Function *lambda.Function
}

// Functions builds every function with its dev-server route. Paths use API
// Gateway's {param} syntax.
func Functions(d Deps) ([]Route, error) {
	if d.Authenticate == nil {
		return nil, errors.New("functions: authenticate callback is required")
	}
	common := func(name, method string, extra ...lambda.Option) []lambda.Option {
		opts := []lambda.Option{lambda.WithName(name), lambda.WithMethod(method), lambda.WithLogger(d.Logger)}
		return append(opts, extra...)
	}
	auth := lambda.WithAuthenticate(d.Authenticate)

	var routes []Route
	add := func(path string, fn *lambda.Function, err error) error {
		if err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
		routes = append(routes, Route{Method: fn.Method(), Path: path, Function: fn})
		return nil
	}

	fn, err := lambda.Wrap(whoami, common("whoami", stdhttp.MethodGet, auth, lambda.KeepEvent(), lambda.KeepContext())...)
	if err := add("/whoami", fn, err); err != nil {
		return nil, err
	}

	fn, err = lambda.Wrap(func(ctx context.Context, req *listRolesRequest) ([]domain.Role, error) {
		roles, err := d.Roles.ListByAppID(ctx, req.AppID)
		return roles, toHTTPError(err)
	}, common("list-roles", stdhttp.MethodGet, auth)...)
	if err := add("/applications/{app_id}/roles", fn, err); err != nil {
		return nil, err
	}

	fn, err = lambda.Wrap(func(ctx context.Context, req *getUserRolesRequest) (domain.UserAppRoles, error) {
		roles, err := d.Users.GetUserAppRoles(ctx, req.AppID, req.UserID)
		return roles, toHTTPError(err)
	}, common("get-user-roles", stdhttp.MethodGet, auth)...)
	if err := add("/applications/{app_id}/users/{user_id}", fn, err); err != nil {
		return nil, err
	}

	fn, err = lambda.Wrap(func(ctx context.Context, req *assignRoleRequest) (lambda.NoContent, error) {
		return lambda.NoContent{}, toHTTPError(d.Users.AssignRole(ctx, req.AppID, req.UserID, req.RoleID))
	}, common("assign-role", stdhttp.MethodPost, auth,
		lambda.WithAuthorize(application.RequirePermission(d.Authz, d.AdminAppID, PermissionAssignRoles)))...)
	if err := add("/applications/{app_id}/users/{user_id}/roles", fn, err); err != nil {
		return nil, err
	}

	fn, err = lambda.Wrap(func(ctx context.Context, req *authorizeRequest) (map[string]any, error) {
		userID := req.UserID
		if userID == "" {
			userID = req.User.UserID
		}
		allowed, err := d.Authz.IsAllowed(ctx, req.AppID, userID, req.Permission)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return map[string]any{"allowed": allowed, "user_id": userID}, nil
	}, common("authorize", stdhttp.MethodPost, auth)...)
	if err := add("/authorize", fn, err); err != nil {
		return nil, err
	}

	fn, err = lambda.Wrap(echoHandler, common("echo", stdhttp.MethodPost)...)
	if err := add("/echo", fn, err); err != nil {
		return nil, err
	}
	return routes, nil
}

// Lookup returns the function registered under name.
func Lookup(routes []Route, name string) (*lambda.Function, bool) {
	for _, r := range routes {
		if r.Function.Name() == name {
			return r.Function, true
		}
	}
	return nil, false
}
