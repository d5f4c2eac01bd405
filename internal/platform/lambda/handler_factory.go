// Package lambda turns typed handlers into API Gateway proxy handlers.
//
// A handler receives a pointer to a request struct whose exported fields are
// bound from the incoming event:
//
//	type getUser struct {
//		AppID  string           `path:"app_id"`
//		Expand bool             `query:"expand,optional"`
//		Token  string           `header:"X-Api-Token"`
//		Filter map[string]any   `body:"*"`
//		User   domain.Principal `sam:"user"`
//	}
//
// Untagged fields, and fields tagged `param:"key"`, are read from the query
// string for GET, DELETE and HEAD and from the JSON body otherwise. The tag
// value "*" binds the whole container. The parameter layout is computed once
// by Wrap; invocations only read it.
package lambda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/go-playground/validator/v10"

	"gamgee/internal/domain"
)

// LambdaHandler is accepted by lambda.Start.
type LambdaHandler func(ctx context.Context, event events.APIGatewayProxyRequest) (Response, error)

var ErrNilHandler = errors.New("nil handler")

// Function is a wrapped handler ready to be invoked with proxy events.
type Function struct {
	name   string
	method string
	spec   *requestSpec
	invoke func(ctx context.Context, event events.APIGatewayProxyRequest) Response
}

// Name is the name set with WithName.
func (f *Function) Name() string { return f.name }

// Method is the HTTP method set with WithMethod.
func (f *Function) Method() string { return f.method }

// Params returns the bound parameters in declaration order.
func (f *Function) Params() []Param {
	return f.spec.Params()
}

// Invoke runs the full pipeline. It never fails: every error becomes a
// Response.
func (f *Function) Invoke(ctx context.Context, event events.APIGatewayProxyRequest) Response {
	return f.invoke(ctx, event)
}

// Handler adapts f to lambda.Start.
func (f *Function) Handler() LambdaHandler {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (Response, error) {
		return f.invoke(ctx, event), nil
	}
}

// ProxyHandler is like Handler but returns the proxy integration response
// type, with the body always rendered as a string.
func (f *Function) ProxyHandler() func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return f.invoke(ctx, event).Proxy()
	}
}

// Wrap validates the request type and options and returns the wrapped
// function. Configuration mistakes are reported here rather than per call.
func Wrap[Req, Resp any](h func(ctx context.Context, req *Req) (Resp, error), opts ...Option) (*Function, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.authorize != nil && o.authenticate == nil {
		return nil, ErrAuthorizeWithoutAuthenticate
	}

	spec, err := inspectRequest(reflect.TypeFor[Req](), o)
	if err != nil {
		return nil, fmt.Errorf("wrap %s: %w", o.name, err)
	}
	o.finish()

	w := &wrapper[Req, Resp]{
		handler: h,
		opts:    o,
		spec:    spec,
		kind:    classifyResult(reflect.TypeFor[Resp]()),
	}
	return &Function{name: o.name, method: o.method, spec: spec, invoke: w.invoke}, nil
}

// MustWrap is like Wrap but panics on a registration error.
func MustWrap[Req, Resp any](h func(ctx context.Context, req *Req) (Resp, error), opts ...Option) *Function {
	f, err := Wrap(h, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

type wrapper[Req, Resp any] struct {
	handler func(context.Context, *Req) (Resp, error)
	opts    options
	spec    *requestSpec
	kind    resultKind
}

func (w *wrapper[Req, Resp]) invoke(ctx context.Context, event events.APIGatewayProxyRequest) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			w.opts.logger.Error(ctx, "recovered panic",
				"function", w.opts.name,
				"request_id", event.RequestContext.RequestID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			resp = ErrorResponse(domain.ErrInternal)
		}
	}()

	var user AuthUser
	if w.opts.authenticate != nil {
		u, err := w.opts.authenticate(ctx, event)
		if err != nil {
			return w.fail(ctx, event, "authentication failed", err)
		}
		user = u

		if w.opts.authorize != nil {
			allowed, err := w.opts.authorize(ctx, user)
			if err != nil {
				return w.fail(ctx, event, "authorization failed", err)
			}
			if !allowed {
				return ErrorResponse(domain.ErrAuthorization)
			}
		}
	}

	req := new(Req)
	dst := reflect.ValueOf(req).Elem()
	if err := w.spec.bind(newSource(&event), dst); err != nil {
		if httpErr, ok := domain.AsHTTPError(err); ok {
			w.opts.logger.Debug(ctx, "request binding failed", "function", w.opts.name, "error", err)
			return ErrorResponse(httpErr)
		}
		return ErrorResponse(domain.ErrRequestParse.Wrap(err))
	}
	if err := w.inject(ctx, &event, user, dst); err != nil {
		return w.fail(ctx, event, "injection failed", err)
	}
	if err := w.validate(req); err != nil {
		w.opts.logger.Debug(ctx, "request validation failed", "function", w.opts.name, "error", err)
		return ErrorResponse(err)
	}

	result, err := w.call(ctx, req)
	if err != nil {
		return w.fail(ctx, event, "uncaught handler error", err)
	}
	return w.shape(ctx, event, result)
}

// fail renders domain errors as themselves and hides everything else behind
// a generic 500.
func (w *wrapper[Req, Resp]) fail(ctx context.Context, event events.APIGatewayProxyRequest, msg string, err error) Response {
	if httpErr, ok := domain.AsHTTPError(err); ok {
		w.opts.logger.Info(ctx, msg,
			"function", w.opts.name,
			"status", httpErr.StatusCode,
			"error", err,
		)
		return ErrorResponse(httpErr)
	}
	w.opts.logger.Error(ctx, msg,
		"function", w.opts.name,
		"request_id", event.RequestContext.RequestID,
		"error", err,
	)
	return ErrorResponse(domain.ErrInternal)
}

func (w *wrapper[Req, Resp]) inject(ctx context.Context, event *events.APIGatewayProxyRequest, user AuthUser, dst reflect.Value) error {
	if w.spec.event != nil {
		field := dst.FieldByIndex(w.spec.event)
		if field.Kind() == reflect.Pointer {
			cp := *event
			field.Set(reflect.ValueOf(&cp))
		} else {
			field.Set(reflect.ValueOf(*event))
		}
	}
	if w.spec.lambdaCtx != nil {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			field := dst.FieldByIndex(w.spec.lambdaCtx)
			if field.Kind() == reflect.Pointer {
				field.Set(reflect.ValueOf(lc))
			} else {
				field.Set(reflect.ValueOf(*lc))
			}
		}
	}
	if w.spec.user != nil && user != nil {
		field := dst.FieldByIndex(w.spec.user)
		v := reflect.ValueOf(user)
		if !v.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("authenticated user of type %s cannot be assigned to %s", v.Type(), field.Type())
		}
		field.Set(v)
	}
	return nil
}

func (w *wrapper[Req, Resp]) validate(req *Req) *domain.HTTPError {
	err := w.opts.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrRequestParse.Wrap(err)
	}
	fe := verrs[0]
	for _, p := range w.spec.params {
		if p.Name == fe.StructField() {
			return domain.RequestParseError(fmt.Sprintf("Invalid %s parameter %q: failed %s validation.", p.In, p.Key, fe.Tag())).Wrap(err)
		}
	}
	return domain.RequestParseError(fmt.Sprintf("Invalid field %q: failed %s validation.", fe.Field(), fe.Tag())).Wrap(err)
}

// traced reports whether ctx carries an X-Ray segment, or a Lambda trace
// header from which the SDK builds a facade segment.
func traced(ctx context.Context) bool {
	if xray.GetSegment(ctx) != nil {
		return true
	}
	header, _ := ctx.Value(xray.LambdaTraceHeaderKey).(string)
	return header != ""
}

func (w *wrapper[Req, Resp]) call(ctx context.Context, req *Req) (Resp, error) {
	if !traced(ctx) {
		return w.handler(ctx, req)
	}
	var result Resp
	err := xray.Capture(ctx, w.opts.name, func(ctx context.Context) error {
		var err error
		result, err = w.handler(ctx, req)
		return err
	})
	return result, err
}

func (w *wrapper[Req, Resp]) shape(ctx context.Context, event events.APIGatewayProxyRequest, result Resp) Response {
	if !w.opts.jsonResponse {
		return Response{StatusCode: http.StatusOK, Body: result}
	}
	resp, err := envelopeResponse(http.StatusOK, successEnvelope(w.kind, result))
	if err != nil {
		w.opts.logger.Error(ctx, "encode response failed",
			"function", w.opts.name,
			"request_id", event.RequestContext.RequestID,
			"error", err,
		)
		return ErrorResponse(domain.ErrInternal)
	}
	return resp
}
