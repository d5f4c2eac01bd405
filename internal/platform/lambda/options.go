package lambda

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"

	"gamgee/internal/adapters/logger"
	"gamgee/internal/ports"
)

// AuthUser is whatever an authenticator returns. It is handed to the
// authorizer and injected into the request field tagged `sam:"user"`.
type AuthUser = any

// AuthenticateFunc identifies the caller. Returning a domain.HTTPError
// short-circuits the invocation with that error's response.
type AuthenticateFunc func(ctx context.Context, event events.APIGatewayProxyRequest) (AuthUser, error)

// AuthorizeFunc decides whether an authenticated caller may invoke the
// handler. false results in a 403.
type AuthorizeFunc func(ctx context.Context, user AuthUser) (bool, error)

type options struct {
	name         string
	method       string
	authenticate AuthenticateFunc
	authorize    AuthorizeFunc
	jsonResponse bool
	keepEvent    bool
	keepContext  bool
	logger       ports.Logger
	validate     *validator.Validate
}

func defaultOptions() options {
	return options{
		name:         "handler",
		method:       http.MethodGet,
		jsonResponse: true,
	}
}

// Option configures a wrapped handler at registration time.
type Option func(*options)

// WithName sets the function name used in logs and trace subsegments.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithMethod sets the HTTP method used to infer where untagged parameters
// are read from.
func WithMethod(method string) Option {
	return func(o *options) {
		if method != "" {
			o.method = strings.ToUpper(method)
		}
	}
}

// WithAuthenticate runs fn before binding and hands its result to the
// authorizer and the `sam:"user"` field.
func WithAuthenticate(fn AuthenticateFunc) Option {
	return func(o *options) {
		o.authenticate = fn
	}
}

// WithAuthorize requires WithAuthenticate; Wrap fails otherwise.
func WithAuthorize(fn AuthorizeFunc) Option {
	return func(o *options) {
		o.authorize = fn
	}
}

// WithJSONResponse toggles the success envelope. When disabled the handler
// result is returned as the response body untouched.
func WithJSONResponse(enabled bool) Option {
	return func(o *options) {
		o.jsonResponse = enabled
	}
}

// KeepEvent injects the raw proxy event into the field tagged `sam:"event"`.
func KeepEvent() Option {
	return func(o *options) {
		o.keepEvent = true
	}
}

// KeepContext injects the Lambda invocation context into the field tagged
// `sam:"context"`.
func KeepContext() Option {
	return func(o *options) {
		o.keepContext = true
	}
}

// WithLogger replaces the default slog logger. nil is ignored.
func WithLogger(l ports.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithValidator replaces the default validator. nil is ignored.
func WithValidator(v *validator.Validate) Option {
	return func(o *options) {
		if v != nil {
			o.validate = v
		}
	}
}

func (o *options) finish() {
	if o.logger == nil {
		o.logger = logger.New()
	}
	if o.validate == nil {
		o.validate = validator.New()
	}
}
