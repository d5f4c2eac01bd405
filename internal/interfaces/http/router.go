package http

import (
	"encoding/base64"
	"io"
	stdhttp "net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"gamgee/internal/platform/lambda"
)

type Middleware struct {
	XRay          echo.MiddlewareFunc
	RequestLogger echo.MiddlewareFunc
}

func newEcho(m Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	if m.XRay != nil {
		e.Use(m.XRay)
	}
	if m.RequestLogger != nil {
		e.Use(m.RequestLogger)
	}
	return e
}

// NewRouter mounts every route on an echo server that replays requests as
// API Gateway proxy events.
func NewRouter(routes []Route, m Middleware) *echo.Echo {
	e := newEcho(m)
	for _, r := range routes {
		e.Add(r.Method, echoPath(r.Path), Adapt(r.Path, r.Function))
	}
	return e
}

// echoPath turns /users/{id} into /users/:id.
func echoPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			parts[i] = ":" + strings.TrimSuffix(strings.TrimPrefix(p, "{"), "}")
		}
	}
	return strings.Join(parts, "/")
}

// Adapt exposes a wrapped function as an echo handler.
func Adapt(resource string, fn *lambda.Function) echo.HandlerFunc {
	return func(c echo.Context) error {
		event, err := ProxyEvent(c, resource)
		if err != nil {
			return err
		}
		ctx := lambdacontext.NewContext(c.Request().Context(), &lambdacontext.LambdaContext{
			AwsRequestID:       event.RequestContext.RequestID,
			InvokedFunctionArn: "arn:aws:lambda:local:000000000000:function:" + fn.Name(),
		})
		out, err := fn.Invoke(ctx, event).Proxy()
		if err != nil {
			return err
		}
		for k, v := range out.Headers {
			c.Response().Header().Set(k, v)
		}
		contentType := out.Headers["Content-Type"]
		if contentType == "" {
			contentType = echo.MIMETextPlainCharsetUTF8
		}
		return c.Blob(out.StatusCode, contentType, []byte(out.Body))
	}
}

// ProxyEvent converts the current request into the event API Gateway would
// deliver for it. Bodies that are not valid UTF-8 are base64 encoded.
func ProxyEvent(c echo.Context, resource string) (events.APIGatewayProxyRequest, error) {
	req := c.Request()
	event := events.APIGatewayProxyRequest{
		Resource:   resource,
		Path:       req.URL.Path,
		HTTPMethod: req.Method,
	}

	if len(req.Header) > 0 {
		event.Headers = make(map[string]string, len(req.Header))
		event.MultiValueHeaders = make(map[string][]string, len(req.Header))
		for k, v := range req.Header {
			event.Headers[k] = v[0]
			event.MultiValueHeaders[k] = v
		}
	}
	if query := req.URL.Query(); len(query) > 0 {
		event.QueryStringParameters = make(map[string]string, len(query))
		event.MultiValueQueryStringParameters = map[string][]string(query)
		for k, v := range query {
			event.QueryStringParameters[k] = v[0]
		}
	}
	if names := c.ParamNames(); len(names) > 0 {
		event.PathParameters = make(map[string]string, len(names))
		for i, name := range names {
			event.PathParameters[name] = c.ParamValues()[i]
		}
	}

	if req.Body != nil && req.Body != stdhttp.NoBody {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return event, err
		}
		if utf8.Valid(raw) {
			event.Body = string(raw)
		} else {
			event.Body = base64.StdEncoding.EncodeToString(raw)
			event.IsBase64Encoded = true
		}
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	event.RequestContext = events.APIGatewayProxyRequestContext{
		RequestID:    requestID,
		Stage:        "local",
		ResourcePath: resource,
		HTTPMethod:   req.Method,
		Path:         req.URL.Path,
		Identity:     events.APIGatewayRequestIdentity{SourceIP: c.RealIP(), UserAgent: req.UserAgent()},
	}
	return event, nil
}
