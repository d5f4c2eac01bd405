package lambda

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"gamgee/internal/domain"
)

// source resolves parameter values from a single event. The body is decoded
// at most once and only when a body parameter asks for it.
type source struct {
	event *events.APIGatewayProxyRequest

	raw     []byte
	rawErr  error
	rawDone bool

	fields    map[string]json.RawMessage
	fieldsErr error
	fieldsOK  bool
}

func newSource(event *events.APIGatewayProxyRequest) *source {
	return &source{event: event}
}

func missing(p Param) error {
	if p.Whole {
		return domain.RequestParseError(fmt.Sprintf("Missing %s.", p.In))
	}
	return domain.RequestParseError(fmt.Sprintf("Missing %s parameter %q.", p.In, p.Key))
}

func invalid(p Param, err error) error {
	return domain.RequestParseError(fmt.Sprintf("Invalid %s parameter %q.", p.In, p.Key)).Wrap(err)
}

// bind fills dst from the event. The first failure aborts binding.
func (s *requestSpec) bind(src *source, dst reflect.Value) error {
	for _, loc := range bindOrder {
		for _, p := range s.groups[loc] {
			if err := src.assign(p, dst.FieldByIndex(p.index)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *source) assign(p Param, field reflect.Value) error {
	switch p.In {
	case Query:
		return s.assignStrings(p, field, s.event.QueryStringParameters, s.event.MultiValueQueryStringParameters, false)
	case Path:
		return s.assignStrings(p, field, s.event.PathParameters, nil, false)
	case Header:
		return s.assignStrings(p, field, s.event.Headers, s.event.MultiValueHeaders, true)
	case Body:
		return s.assignBody(p, field)
	default:
		return missing(p)
	}
}

func (s *source) assignStrings(p Param, field reflect.Value, single map[string]string, multi map[string][]string, foldCase bool) error {
	if single == nil && multi == nil {
		if p.Optional {
			return nil
		}
		return missing(p)
	}

	if p.Whole {
		if field.Type() == stringsMapType {
			field.Set(reflect.ValueOf(mergeMulti(single, multi)))
			return nil
		}
		cp := make(map[string]string, len(single)+len(multi))
		for k, v := range multi {
			if len(v) > 0 {
				cp[k] = v[0]
			}
		}
		for k, v := range single {
			cp[k] = v
		}
		field.Set(reflect.ValueOf(cp))
		return nil
	}

	var values []string
	multiValues, inMulti := lookupMulti(multi, p.Key, foldCase)
	if v, inSingle := lookup(single, p.Key, foldCase); inSingle && !(inMulti && wantsSlice(p.Type)) {
		values = []string{v}
	} else if inMulti {
		values = multiValues
	}
	if values == nil {
		if p.Optional {
			return nil
		}
		return missing(p)
	}
	if err := setText(field, values); err != nil {
		return invalid(p, err)
	}
	return nil
}

func lookup(m map[string]string, key string, foldCase bool) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	if foldCase {
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return "", false
}

func lookupMulti(m map[string][]string, key string, foldCase bool) ([]string, bool) {
	if v, ok := m[key]; ok && len(v) > 0 {
		return v, true
	}
	if foldCase {
		for k, v := range m {
			if strings.EqualFold(k, key) && len(v) > 0 {
				return v, true
			}
		}
	}
	return nil, false
}

func mergeMulti(single map[string]string, multi map[string][]string) map[string][]string {
	out := make(map[string][]string, len(single)+len(multi))
	for k, v := range multi {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range single {
		if _, ok := out[k]; !ok {
			out[k] = []string{v}
		}
	}
	return out
}

func wantsSlice(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Slice && !reflect.PointerTo(t).Implements(textType)
}

func (s *source) rawBody() ([]byte, error) {
	if s.rawDone {
		return s.raw, s.rawErr
	}
	s.rawDone = true
	if s.event.Body == "" {
		return nil, nil
	}
	if s.event.IsBase64Encoded {
		s.raw, s.rawErr = base64.StdEncoding.DecodeString(s.event.Body)
		return s.raw, s.rawErr
	}
	s.raw = []byte(s.event.Body)
	return s.raw, nil
}

func (s *source) bodyFields(raw []byte) (map[string]json.RawMessage, error) {
	if !s.fieldsOK {
		s.fieldsOK = true
		s.fieldsErr = json.Unmarshal(raw, &s.fields)
	}
	return s.fields, s.fieldsErr
}

func (s *source) assignBody(p Param, field reflect.Value) error {
	raw, err := s.rawBody()
	if err != nil {
		return domain.RequestParseError("Unable to decode request body.").Wrap(err)
	}
	if len(raw) == 0 {
		if p.Optional {
			return nil
		}
		return missing(p)
	}

	if p.Whole {
		return setJSON(p, field, raw)
	}

	fields, err := s.bodyFields(raw)
	if err != nil {
		return domain.RequestParseError(fmt.Sprintf("Invalid %s parameter %q: body must be a JSON object.", p.In, p.Key)).Wrap(err)
	}
	value, ok := fields[p.Key]
	if !ok {
		if p.Optional {
			return nil
		}
		return missing(p)
	}
	return setJSON(p, field, value)
}

func setJSON(p Param, field reflect.Value, raw []byte) error {
	switch field.Interface().(type) {
	case json.RawMessage:
		field.Set(reflect.ValueOf(json.RawMessage(append([]byte(nil), raw...))))
		return nil
	case []byte:
		field.SetBytes(append([]byte(nil), raw...))
		return nil
	case string:
		if p.Whole {
			field.SetString(string(raw))
			return nil
		}
	}
	if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
		return invalid(p, err)
	}
	return nil
}

// setText converts string values into field. Slices take every value,
// splitting comma separated items; scalars take the first.
func setText(field reflect.Value, values []string) error {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setText(field.Elem(), values)
	}

	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(values[0]))
	}

	if field.Kind() == reflect.Slice {
		var all []string
		for _, v := range values {
			for _, item := range strings.Split(v, ",") {
				all = append(all, strings.TrimSpace(item))
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(all), len(all))
		for i, v := range all {
			if err := setText(slice.Index(i), []string{v}); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	}

	value := values[0]
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q", value)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid uint value %q", value)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float value %q", value)
		}
		field.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			switch strings.ToLower(value) {
			case "on", "yes":
				b = true
			case "off", "no", "":
				b = false
			default:
				return fmt.Errorf("invalid bool value %q", value)
			}
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}
