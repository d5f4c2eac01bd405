// Package auth provides the authenticate callbacks used by wrapped
// functions. Every authenticator yields a domain.Principal.
package auth

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"gamgee/internal/config"
	"gamgee/internal/domain"
	"gamgee/internal/platform/lambda"
)

type Authenticator interface {
	Authenticate(ctx context.Context, event events.APIGatewayProxyRequest) (domain.Principal, error)
}

// Func adapts an Authenticator to the callback accepted by lambda.WithAuthenticate.
func Func(a Authenticator) lambda.AuthenticateFunc {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (lambda.AuthUser, error) {
		p, err := a.Authenticate(ctx, event)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewAuthenticator picks the authenticator for cfg.AuthMode.
func NewAuthenticator(cfg config.Config) (Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone, "":
		return Anonymous{}, nil
	case config.AuthModeHeader:
		return HeaderAuthenticator{}, nil
	case config.AuthModeJWT:
		if cfg.JWTSecret == "" {
			return nil, config.ErrMissingJWTSecret
		}
		return NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer), nil
	case config.AuthModeCognito:
		if cfg.UserPoolID == "" || cfg.Region == "" {
			return nil, config.ErrMissingPool
		}
		return NewCognitoAuthenticator(cfg.UserPoolID, cfg.Region, cfg.JWKSCacheTTL), nil
	default:
		return nil, config.ErrInvalidAuthMode
	}
}

const AnonymousUserID = "anonymous"

// Anonymous accepts every request.
type Anonymous struct{}

func (Anonymous) Authenticate(context.Context, events.APIGatewayProxyRequest) (domain.Principal, error) {
	return domain.Principal{UserID: AnonymousUserID}, nil
}

// HeaderAuthenticator trusts the X-User-Id header. Local development only.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(_ context.Context, event events.APIGatewayProxyRequest) (domain.Principal, error) {
	userID := strings.TrimSpace(header(event, "X-User-Id"))
	if userID == "" {
		return domain.Principal{}, domain.AuthenticationError("Missing X-User-Id header.")
	}
	p := domain.Principal{UserID: userID, Email: header(event, "X-User-Email")}
	for _, g := range strings.Split(header(event, "X-User-Groups"), ",") {
		if g = strings.TrimSpace(g); g != "" {
			p.Groups = append(p.Groups, g)
		}
	}
	return p, nil
}

func header(event events.APIGatewayProxyRequest, name string) string {
	for k, v := range event.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range event.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func bearerToken(event events.APIGatewayProxyRequest) (string, error) {
	authHeader := header(event, "Authorization")
	if authHeader == "" {
		return "", domain.AuthenticationError("Missing authorization token.")
	}
	token := strings.TrimSpace(authHeader)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", domain.AuthenticationError("Invalid authorization token.")
	}
	return token, nil
}
