package lambda

import (
	"encoding"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

// Location is the part of the proxy event a parameter is read from.
type Location int

const (
	Query Location = iota
	Path
	Body
	Header
)

// bindOrder is the fixed order in which parameter groups are resolved.
var bindOrder = [...]Location{Query, Path, Body, Header}

func (l Location) String() string {
	switch l {
	case Query:
		return "query string"
	case Path:
		return "path parameters"
	case Body:
		return "request body"
	case Header:
		return "headers"
	default:
		return "unknown"
	}
}

func (l Location) tag() string {
	switch l {
	case Query:
		return "query"
	case Path:
		return "path"
	case Body:
		return "body"
	case Header:
		return "header"
	default:
		return ""
	}
}

// DefaultLocation is where untagged parameters come from for a method.
func DefaultLocation(method string) Location {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		return Query
	default:
		return Body
	}
}

const (
	wholeKey    = "*"
	inferredTag = "param"
	reservedTag = "sam"
)

// Param describes one bound field of a request struct.
type Param struct {
	Name     string
	Key      string
	In       Location
	Whole    bool
	Optional bool
	Type     reflect.Type

	index []int
}

var (
	ErrAuthorizeWithoutAuthenticate = errors.New("authorize requires authenticate")
	ErrInvalidRequestType           = errors.New("invalid request type")
)

var (
	eventType      = reflect.TypeOf(events.APIGatewayProxyRequest{})
	lambdaCtxType  = reflect.TypeOf(lambdacontext.LambdaContext{})
	textType       = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	stringMapType  = reflect.TypeOf(map[string]string{})
	stringsMapType = reflect.TypeOf(map[string][]string{})
)

// requestSpec is computed once per Wrap and never mutated afterwards.
type requestSpec struct {
	typ    reflect.Type
	params []Param
	groups [len(bindOrder)][]Param

	event     []int
	lambdaCtx []int
	user      []int
}

// Params returns the bound parameters in declaration order.
func (s *requestSpec) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

func inspectRequest(t reflect.Type, o options) (*requestSpec, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidRequestType, t)
	}
	spec := &requestSpec{typ: t}
	fallback := DefaultLocation(o.method)

	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		if tag, ok := field.Tag.Lookup(reservedTag); ok {
			if hasLocationTag(field) {
				return nil, fmt.Errorf("%w: field %s is tagged %s and also declares a location", ErrInvalidRequestType, field.Name, reservedTag)
			}
			if err := spec.reserve(field, tag, o); err != nil {
				return nil, err
			}
			continue
		}

		p, err := parseParam(field, fallback)
		if err != nil {
			return nil, err
		}
		spec.params = append(spec.params, p)
		spec.groups[p.In] = append(spec.groups[p.In], p)
	}
	return spec, nil
}

func (s *requestSpec) reserve(field reflect.StructField, tag string, o options) error {
	switch tag {
	case "-":
		return nil
	case "event":
		if !o.keepEvent {
			return fmt.Errorf("%w: field %s wants the event but KeepEvent is not set", ErrInvalidRequestType, field.Name)
		}
		if field.Type != eventType && field.Type != reflect.PointerTo(eventType) {
			return fmt.Errorf("%w: field %s must be events.APIGatewayProxyRequest", ErrInvalidRequestType, field.Name)
		}
		s.event = field.Index
	case "context":
		if !o.keepContext {
			return fmt.Errorf("%w: field %s wants the lambda context but KeepContext is not set", ErrInvalidRequestType, field.Name)
		}
		if field.Type != lambdaCtxType && field.Type != reflect.PointerTo(lambdaCtxType) {
			return fmt.Errorf("%w: field %s must be lambdacontext.LambdaContext", ErrInvalidRequestType, field.Name)
		}
		s.lambdaCtx = field.Index
	case "user":
		if o.authenticate == nil {
			return fmt.Errorf("%w: field %s wants the user but no authenticator is set", ErrInvalidRequestType, field.Name)
		}
		s.user = field.Index
	default:
		return fmt.Errorf("%w: field %s has unknown %s tag %q", ErrInvalidRequestType, field.Name, reservedTag, tag)
	}
	return nil
}

func hasLocationTag(field reflect.StructField) bool {
	for _, loc := range bindOrder {
		if _, ok := field.Tag.Lookup(loc.tag()); ok {
			return true
		}
	}
	_, ok := field.Tag.Lookup(inferredTag)
	return ok
}

func parseParam(field reflect.StructField, fallback Location) (Param, error) {
	p := Param{
		Name:  field.Name,
		In:    fallback,
		Type:  field.Type,
		index: field.Index,
	}

	var (
		tag   string
		found int
	)
	for _, loc := range bindOrder {
		if v, ok := field.Tag.Lookup(loc.tag()); ok {
			p.In, tag = loc, v
			found++
		}
	}
	if v, ok := field.Tag.Lookup(inferredTag); ok {
		tag = v
		found++
	}
	if found > 1 {
		return Param{}, fmt.Errorf("%w: field %s declares more than one location", ErrInvalidRequestType, field.Name)
	}

	key, opts, _ := strings.Cut(tag, ",")
	p.Key = strings.TrimSpace(key)
	if p.Key == "" {
		p.Key = strings.ToLower(field.Name)
	}
	p.Whole = p.Key == wholeKey
	for _, opt := range strings.Split(opts, ",") {
		if strings.TrimSpace(opt) == "optional" {
			p.Optional = true
		}
	}

	if err := checkParamType(p); err != nil {
		return Param{}, err
	}
	return p, nil
}

func checkParamType(p Param) error {
	if p.In == Body {
		return nil
	}
	if p.Whole {
		if p.Type == stringMapType || (p.In != Path && p.Type == stringsMapType) {
			return nil
		}
		return fmt.Errorf("%w: field %s binds all %s and must be map[string]string", ErrInvalidRequestType, p.Name, p.In)
	}
	if !textDecodable(p.Type) {
		return fmt.Errorf("%w: field %s has unsupported type %s for %s", ErrInvalidRequestType, p.Name, p.Type, p.In)
	}
	return nil
}

func textDecodable(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(textType) {
		return true
	}
	switch t.Kind() {
	case reflect.Pointer:
		return textDecodable(t.Elem())
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Slice && t.Elem().Kind() != reflect.Pointer && textDecodable(t.Elem())
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
