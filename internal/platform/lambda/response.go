package lambda

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"gamgee/internal/domain"
)

// Response is what a wrapped handler returns to the Lambda runtime. Body is
// the encoded envelope, or the raw handler result when JSON responses are
// disabled.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body"`
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func envelopeResponse(status int, env Envelope) (Response, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: status, Headers: jsonHeaders(), Body: string(body)}, nil
}

// ErrorResponse renders an HTTPError as a failure envelope.
func ErrorResponse(err *domain.HTTPError) Response {
	// A failure envelope only holds a string, so encoding cannot fail.
	resp, _ := envelopeResponse(err.StatusCode, Failure(err.PublicMessage()))
	return resp
}

// Proxy converts r into the API Gateway proxy integration shape. Non-string
// pass-through bodies are JSON encoded.
func (r Response) Proxy() (events.APIGatewayProxyResponse, error) {
	out := events.APIGatewayProxyResponse{StatusCode: r.StatusCode, Headers: r.Headers}
	switch b := r.Body.(type) {
	case nil:
	case string:
		out.Body = b
	case []byte:
		out.Body = string(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		out.Body = string(encoded)
	}
	if out.StatusCode == 0 {
		out.StatusCode = http.StatusOK
	}
	return out, nil
}

// DecodeEnvelope parses an envelope body into a generic map. Intended for
// callers that inspect responses, such as tests and the dev server.
func (r Response) DecodeEnvelope() (map[string]any, error) {
	var out map[string]any
	var raw []byte
	switch b := r.Body.(type) {
	case string:
		raw = []byte(b)
	case []byte:
		raw = b
	default:
		return nil, domain.ErrInvalidInput
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
