package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"gamgee/internal/domain"
)

type claims struct {
	Email         string   `json:"email,omitempty"`
	Groups        []string `json:"groups,omitempty"`
	CognitoGroups []string `json:"cognito:groups,omitempty"`
	TokenUse      string   `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

func (c *claims) principal() (domain.Principal, error) {
	if c.Subject == "" {
		return domain.Principal{}, domain.AuthenticationError("Token has no subject.")
	}
	groups := slices.Concat(c.Groups, c.CognitoGroups)
	if len(groups) == 0 {
		groups = nil
	}
	return domain.Principal{UserID: c.Subject, Email: c.Email, Groups: groups}, nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return domain.AuthenticationError("Token expired.").Wrap(err)
	}
	return domain.AuthenticationError("Invalid token.").Wrap(err)
}

// JWTAuthenticator verifies HS256 bearer tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

func NewJWTAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, issuer: issuer}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, event events.APIGatewayProxyRequest) (domain.Principal, error) {
	tokenString, err := bearerToken(event)
	if err != nil {
		return domain.Principal{}, err
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	c := &claims{}
	if _, err := jwt.ParseWithClaims(tokenString, c, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return domain.Principal{}, tokenError(err)
	}
	return c.principal()
}
