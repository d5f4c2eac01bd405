package lambda

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamgee/internal/domain"
)

func TestEnvelope_Marshal(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{"bare success", Success(), `{"success":true}`},
		{"ordered fields", Success(Field{"b", 1}, Field{"a", []int{2}}), `{"success":true,"b":1,"a":[2]}`},
		{"duplicate keys keep first position", Success(Field{"a", 1}, Field{"b", 2}, Field{"a", 3}), `{"success":true,"a":3,"b":2}`},
		{"success key is reserved", Success(Field{"success", false}, Field{"x", nil}), `{"success":true,"x":null}`},
		{"failure", Failure(`bad "input"`), `{"success":false,"message":"bad \"input\""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestEnvelope_MarshalReportsFieldErrors(t *testing.T) {
	_, err := json.Marshal(Success(Field{"ch", make(chan int)}))
	assert.ErrorContains(t, err, `"ch"`)
}

func TestEnvelope_Accessors(t *testing.T) {
	assert.True(t, Success().OK())
	f := Failure("nope")
	assert.False(t, f.OK())
	assert.Equal(t, "nope", f.Message())
}

func TestClassifyResult(t *testing.T) {
	type named map[string]bool
	type key string

	assert.Equal(t, resultNone, classifyResult(noContentType))
	assert.Equal(t, resultFields, classifyResult(fieldsType))
	assert.Equal(t, resultMapping, classifyResult(typeOf[map[string]any]()))
	assert.Equal(t, resultMapping, classifyResult(typeOf[named]()))
	assert.Equal(t, resultMapping, classifyResult(typeOf[map[key]int]()))
	assert.Equal(t, resultValue, classifyResult(typeOf[map[int]string]()))
	assert.Equal(t, resultValue, classifyResult(typeOf[domain.Principal]()))
	assert.Equal(t, resultDynamic, classifyResult(typeOf[any]()))
	assert.Equal(t, resultDynamic, classifyResult(typeOf[fmt.Stringer]()))
}

func TestSuccessEnvelope_NilMappingIsBare(t *testing.T) {
	var m map[string]string
	got, err := json.Marshal(successEnvelope(resultMapping, m))
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, string(got))
}

func TestSuccessEnvelope_DynamicFollowsValue(t *testing.T) {
	cases := []struct {
		name   string
		result any
		want   string
	}{
		{"map", map[string]any{"echo": "samwise"}, `{"success":true,"echo":"samwise"}`},
		{"fields", Fields{{Key: "z", Value: 1}, {Key: "a", Value: 2}}, `{"success":true,"z":1,"a":2}`},
		{"no content", NoContent{}, `{"success":true}`},
		{"scalar", 7, `{"success":true,"result":7}`},
		{"nil", nil, `{"success":true,"result":null}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(successEnvelope(resultDynamic, tc.result))
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(domain.AuthenticationError("Token expired."))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `{"success":false,"message":"Token expired."}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestResponse_Proxy(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		want string
	}{
		{"string", Response{StatusCode: 201, Body: "plain"}, "plain"},
		{"bytes", Response{StatusCode: 200, Body: []byte("raw")}, "raw"},
		{"nil", Response{StatusCode: 200}, ""},
		{"value", Response{StatusCode: 200, Body: map[string]int{"n": 1}}, `{"n":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.resp.Proxy()
			require.NoError(t, err)
			assert.Equal(t, tc.resp.StatusCode, out.StatusCode)
			assert.Equal(t, tc.want, out.Body)
		})
	}

	out, err := Response{}.Proxy()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.StatusCode)

	_, err = Response{StatusCode: 200, Body: make(chan int)}.Proxy()
	assert.Error(t, err)
}

func TestResponse_DecodeEnvelope(t *testing.T) {
	env, err := Response{Body: `{"success":true,"result":1}`}.DecodeEnvelope()
	require.NoError(t, err)
	assert.Equal(t, true, env["success"])

	_, err = Response{Body: 5}.DecodeEnvelope()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
