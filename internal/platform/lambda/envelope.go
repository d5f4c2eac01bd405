package lambda

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// NoContent is the result type of handlers that return nothing. Their
// successful responses carry only {"success": true}.
type NoContent struct{}

// Field is one top-level member of a success envelope.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered mapping. Handlers returning Fields have the pairs
// spread into the envelope in the given order.
type Fields []Field

const successKey = "success"

// Envelope is either a success carrying fields or a failure carrying a
// message.
type Envelope struct {
	ok      bool
	fields  Fields
	message string
}

func Success(fields ...Field) Envelope {
	return Envelope{ok: true, fields: fields}
}

func Failure(message string) Envelope {
	return Envelope{message: message}
}

func (e Envelope) OK() bool        { return e.ok }
func (e Envelope) Message() string { return e.message }

// Fields returns the success fields with duplicate keys collapsed: the last
// value wins, the first position is kept. The reserved "success" key is
// dropped.
func (e Envelope) Fields() Fields {
	out := make(Fields, 0, len(e.fields))
	pos := make(map[string]int, len(e.fields))
	for _, f := range e.fields {
		if f.Key == successKey {
			continue
		}
		if i, ok := pos[f.Key]; ok {
			out[i].Value = f.Value
			continue
		}
		pos[f.Key] = len(out)
		out = append(out, f)
	}
	return out
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if !e.ok {
		msg, err := json.Marshal(e.message)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"success":false,"message":`)
		buf.Write(msg)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}

	buf.WriteString(`{"success":true`)
	for _, f := range e.Fields() {
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f.Key, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// resultKind is decided from the handler's declared result type. Interface
// result types are classified per call from the returned value.
type resultKind int

const (
	resultValue resultKind = iota
	resultNone
	resultMapping
	resultFields
	resultDynamic
)

var (
	noContentType = reflect.TypeOf(NoContent{})
	fieldsType    = reflect.TypeOf(Fields(nil))
)

func classifyResult(t reflect.Type) resultKind {
	switch {
	case t == noContentType:
		return resultNone
	case t == fieldsType:
		return resultFields
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		return resultMapping
	case t.Kind() == reflect.Interface:
		return resultDynamic
	default:
		return resultValue
	}
}

func successEnvelope(kind resultKind, result any) Envelope {
	switch kind {
	case resultNone:
		return Success()
	case resultFields:
		fields, _ := result.(Fields)
		return Success(fields...)
	case resultMapping:
		return Success(mapFields(reflect.ValueOf(result))...)
	case resultDynamic:
		if result == nil {
			return Success(Field{Key: "result", Value: nil})
		}
		return successEnvelope(classifyResult(reflect.TypeOf(result)), result)
	default:
		return Success(Field{Key: "result", Value: result})
	}
}

// mapFields flattens a string-keyed map into fields sorted by key.
func mapFields(m reflect.Value) Fields {
	if !m.IsValid() || m.IsNil() {
		return nil
	}
	fields := make(Fields, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		fields = append(fields, Field{Key: iter.Key().String(), Value: iter.Value().Interface()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}
